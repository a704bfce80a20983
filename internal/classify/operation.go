package classify

import (
	"regexp"
	"strings"
)

var operationIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:ID операции|Идентификатор операции|Операция)[\s:]*([\d-]+)`),
	regexp.MustCompile(`(?i)SBP(?:ID|ИД)[\s:]*([\d-]+)`),
	regexp.MustCompile(`(?i)СБП(?:ID|ИД)[\s:]*([\d-]+)`),
}

// ExtractOperationID finds an SBP operation number in receipt text and
// returns its digits. It returns "" when none is present.
func ExtractOperationID(text string) string {
	for _, re := range operationIDPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if id := digitsOnly(m[1]); id != "" {
				return id
			}
		}
	}
	return ""
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
