package pdfdoc

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// sniffWindow is how many leading bytes Sniff looks at.
const sniffWindow = 1024

// Labels shown to the user for sniffed findings.
const (
	LabelUndetermined    = "Не определено"
	LabelAnalysisError   = "Ошибка анализа"
	LabelStandardA4      = "Стандартный A4"
	LabelEmbeddedFonts   = "Встроенные шрифты"
	LabelSystemFonts     = "Системные шрифты"
	MetadataNone         = "Метаданные не обнаружены"
	MetadataError        = "Ошибка при анализе метаданных"
	metadataVersion      = "PDF версия: %s"
	metadataLinearized   = "Оптимизирован для веба: Да"
	metadataPageTree     = "Структура страниц: Корректная"
	metadataEncrypted    = "⚠️ Файл зашифрован"
	metadataModification = "Имеет историю изменений"
)

var versionPattern = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// FontState records what the sniffer could tell about fonts.
type FontState string

const (
	FontsUnknown  FontState = "unknown"
	FontsEmbedded FontState = "embedded"
	FontsSystem   FontState = "system"
)

// StructuralSignals are the raw structural markers found in a document header.
type StructuralSignals struct {
	PDFVersion             string    `json:"pdfVersion,omitempty"`
	Linearized             bool      `json:"linearized"`
	HasPageTree            bool      `json:"hasPageTree"`
	Encrypted              bool      `json:"encrypted"`
	HasModificationHistory bool      `json:"hasModificationHistory"`
	PageSizeKnown          bool      `json:"pageSizeKnown"`
	FontsEmbedded          FontState `json:"fontsEmbedded"`
}

// Finding is a single pass/fail check with a human-readable label.
type Finding struct {
	OK    bool
	Label string
}

// Sniffed is the result of Sniff.
type Sniffed struct {
	Signals  StructuralSignals
	FileSize Finding
	PageSize Finding
	Font     Finding
	Metadata string
}

// SizeLabel formats a byte count the way the report displays it.
func SizeLabel(size int) string {
	return fmt.Sprintf("%.2f MB", float64(size)/1024/1024)
}

// Sniff scans the head of a PDF for structural markers without parsing it.
// It never fails: problems are reported as degraded findings.
func Sniff(data []byte) (result Sniffed) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Failed to sniff PDF metadata", "panic", r)
			result = Sniffed{
				Signals:  StructuralSignals{FontsEmbedded: FontsUnknown},
				FileSize: Finding{Label: LabelAnalysisError},
				PageSize: Finding{Label: LabelAnalysisError},
				Font:     Finding{Label: LabelAnalysisError},
				Metadata: MetadataError,
			}
		}
	}()
	return sniff(data)
}

func sniff(data []byte) Sniffed {
	head := data
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	text := string(head)

	signals := StructuralSignals{FontsEmbedded: FontsUnknown}
	var lines []string

	if m := versionPattern.FindStringSubmatch(text); m != nil {
		signals.PDFVersion = m[1]
		lines = append(lines, fmt.Sprintf(metadataVersion, m[1]))
	}
	if strings.Contains(text, "/Linearized") {
		signals.Linearized = true
		lines = append(lines, metadataLinearized)
	}
	if strings.Contains(text, "/Pages") {
		signals.HasPageTree = true
		lines = append(lines, metadataPageTree)
	}
	if strings.Contains(text, "/Encrypt") {
		signals.Encrypted = true
		lines = append(lines, metadataEncrypted)
	}
	if strings.Contains(text, "/ModDate") {
		signals.HasModificationHistory = true
		lines = append(lines, metadataModification)
	}

	pageSize := Finding{Label: LabelUndetermined}
	if signals.HasPageTree || strings.Contains(text, "/MediaBox") {
		signals.PageSizeKnown = true
		pageSize = Finding{OK: true, Label: LabelStandardA4}
	}

	font := Finding{Label: LabelUndetermined}
	if strings.Contains(text, "/Font") {
		if strings.Contains(text, "/FontFile") {
			signals.FontsEmbedded = FontsEmbedded
			font = Finding{OK: true, Label: LabelEmbeddedFonts}
		} else {
			signals.FontsEmbedded = FontsSystem
			font = Finding{OK: true, Label: LabelSystemFonts}
		}
	}

	if len(lines) == 0 && !signals.PageSizeKnown && signals.FontsEmbedded == FontsUnknown {
		return Sniffed{
			Signals:  signals,
			FileSize: Finding{Label: LabelUndetermined},
			PageSize: Finding{Label: LabelUndetermined},
			Font:     Finding{Label: LabelUndetermined},
			Metadata: MetadataNone,
		}
	}

	metadata := MetadataNone
	if len(lines) > 0 {
		metadata = strings.Join(lines, "\n")
	}

	return Sniffed{
		Signals:  signals,
		FileSize: Finding{OK: true, Label: SizeLabel(len(data))},
		PageSize: pageSize,
		Font:     font,
		Metadata: metadata,
	}
}
