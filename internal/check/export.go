package check

import (
	"fmt"
	"sort"
	"strings"
)

const reportTitle = "Отчет о проверке чека"

var visionStatusLabels = map[VisionStatus]string{
	VisionOK:      "выполнен",
	VisionFailed:  "не удался",
	VisionSkipped: "не выполнялся",
}

func okLabel(f Finding) string {
	if f.OK {
		return f.Label + " (OK)"
	}
	return f.Label
}

// ReportLines lays a report out as the text lines of its PDF export.
func ReportLines(r *VerificationReport) []string {
	lines := []string{
		"ID: " + r.ID,
		"Дата проверки: " + r.Timestamp,
		"Файл: " + r.FileName,
		"Банк: " + string(r.Bank),
		"Тип чека: " + string(r.CheckType),
	}
	if r.OperationID != "" {
		lines = append(lines, "ID операции: "+r.OperationID)
	}

	lines = append(lines,
		"",
		"Размер файла: "+okLabel(r.Results.FileSize),
		"Размер страницы: "+okLabel(r.Results.PageSize),
		"Шрифты: "+okLabel(r.Results.Font),
		"Метаданные:",
	)
	for _, line := range strings.Split(r.Results.Metadata, "\n") {
		lines = append(lines, "  "+line)
	}

	if ai := r.AIVerification; ai != nil {
		lines = append(lines,
			"",
			"Заключение ИИ: "+ai.Conclusion,
			"Легитимность: "+string(ai.Legitimacy),
			fmt.Sprintf("Уверенность: %.0f%%", ai.Confidence*100),
		)
		for _, w := range ai.Warnings {
			lines = append(lines, "  - "+w)
		}

		keys := make([]string, 0, len(ai.TechnicalDetails))
		for k := range ai.TechnicalDetails {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  %s: %s", k, ai.TechnicalDetails[k]))
		}
	}

	lines = append(lines, "", "Анализ изображения: "+visionStatusLabels[r.VisionStatus])
	if v := r.VisionAnalysis; v != nil {
		verdict := "нет"
		if v.Verified {
			verdict = "да"
		}
		lines = append(lines,
			"Подлинность по изображению: "+verdict,
			fmt.Sprintf("Уверенность: %.0f%%", v.Confidence*100),
		)
		fields := []struct{ label, value string }{
			{"Сумма", v.ExtractedData.Amount},
			{"Дата", v.ExtractedData.Date},
			{"Банк", v.ExtractedData.BankName},
			{"Операция", v.ExtractedData.OperationType},
			{"Отправитель", v.ExtractedData.Sender},
			{"Получатель", v.ExtractedData.Recipient},
			{"Назначение", v.ExtractedData.Reference},
		}
		for _, f := range fields {
			if f.value != "" {
				lines = append(lines, fmt.Sprintf("  %s: %s", f.label, f.value))
			}
		}
		if v.Warning != "" {
			lines = append(lines, "Предупреждение: "+v.Warning)
		}
	}

	return lines
}
