// Package classify guesses which bank and transfer type issued a receipt
// from its extracted text.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bank identifies the issuing bank of a receipt.
type Bank string

const (
	BankVTB     Bank = "vtb"
	BankTinkoff Bank = "tinkoff"
	BankAlfa    Bank = "alfa"
	BankSber    Bank = "sber"
	BankUnknown Bank = "unknown"
)

// Valid reports whether b is a known bank.
func (b Bank) Valid() bool {
	switch b {
	case BankVTB, BankTinkoff, BankAlfa, BankSber, BankUnknown:
		return true
	}
	return false
}

// CheckType identifies the kind of transfer a receipt documents.
type CheckType string

const (
	CheckSBP                  CheckType = "sbp"
	CheckTinkoffPhoneTransfer CheckType = "tinkoffPhoneTransfer"
	CheckAlfaInternalTransfer CheckType = "alfaInternalTransfer"
	CheckUnknownTransfer      CheckType = "UnknownTransfer"
)

// Valid reports whether c is a known check type.
func (c CheckType) Valid() bool {
	switch c {
	case CheckSBP, CheckTinkoffPhoneTransfer, CheckAlfaInternalTransfer, CheckUnknownTransfer:
		return true
	}
	return false
}

// Classification is a (bank, check type) pair.
type Classification struct {
	Bank      Bank      `json:"bank"`
	CheckType CheckType `json:"checkType"`
}

// Unknown is the classification of text no rule matches.
var Unknown = Classification{Bank: BankUnknown, CheckType: CheckUnknownTransfer}

// Subtype narrows a bank match down to a transfer type.
type Subtype struct {
	CheckType CheckType `yaml:"checkType"`
	Keywords  []string  `yaml:"keywords"`
	Patterns  []string  `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// Rule maps bank markers to a bank and its transfer sub-types.
type Rule struct {
	Bank     Bank      `yaml:"bank"`
	Markers  []string  `yaml:"markers"`
	Subtypes []Subtype `yaml:"subtypes"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

//go:embed rules.yaml
var defaultRulesYAML []byte

var defaultClassifier = mustParse(defaultRulesYAML)

// Classifier evaluates an ordered rule list. The first matching rule wins.
type Classifier struct {
	rules []Rule
}

// DefaultClassifier returns the classifier built from the embedded rule file.
func DefaultClassifier() *Classifier {
	return defaultClassifier
}

// Classify runs the default rules over text.
func Classify(text string) Classification {
	return defaultClassifier.Classify(text)
}

// LoadRules reads and validates a rule file from disk.
func LoadRules(path string) (*Classifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules parses and validates a YAML rule document.
func ParseRules(raw []byte) (*Classifier, error) {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file has no rules")
	}

	for i := range file.Rules {
		rule := &file.Rules[i]
		if !rule.Bank.Valid() {
			return nil, fmt.Errorf("rule %d: unknown bank %q", i, rule.Bank)
		}
		if len(rule.Markers) == 0 {
			return nil, fmt.Errorf("rule %d (%s): no markers", i, rule.Bank)
		}
		for j, m := range rule.Markers {
			rule.Markers[j] = strings.ToLower(m)
		}
		for j := range rule.Subtypes {
			sub := &rule.Subtypes[j]
			if !sub.CheckType.Valid() {
				return nil, fmt.Errorf("rule %d (%s): unknown check type %q", i, rule.Bank, sub.CheckType)
			}
			for k, kw := range sub.Keywords {
				sub.Keywords[k] = strings.ToLower(kw)
			}
			for _, p := range sub.Patterns {
				re, err := regexp.Compile(p)
				if err != nil {
					return nil, fmt.Errorf("rule %d (%s): compiling %q: %w", i, rule.Bank, p, err)
				}
				sub.compiled = append(sub.compiled, re)
			}
		}
	}

	return &Classifier{rules: file.Rules}, nil
}

func mustParse(raw []byte) *Classifier {
	c, err := ParseRules(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Rules returns the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify maps text to a classification.
func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	for _, rule := range c.rules {
		if !containsAny(lower, rule.Markers) {
			continue
		}
		for _, sub := range rule.Subtypes {
			if sub.matches(text, lower) {
				return Classification{Bank: rule.Bank, CheckType: sub.CheckType}
			}
		}
		return Classification{Bank: rule.Bank, CheckType: CheckUnknownTransfer}
	}
	return Unknown
}

func (s Subtype) matches(text, lower string) bool {
	if containsAny(lower, s.Keywords) {
		return true
	}
	for _, re := range s.compiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
