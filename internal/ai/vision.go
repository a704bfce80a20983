package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const visionMaxTokens = 1000

// VisionData holds the fields read off the receipt image. Empty means absent.
type VisionData struct {
	Amount        string `json:"amount,omitempty"`
	Date          string `json:"date,omitempty"`
	BankName      string `json:"bankName,omitempty"`
	OperationType string `json:"operationType,omitempty"`
	Sender        string `json:"sender,omitempty"`
	Recipient     string `json:"recipient,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

// VisionOpinion is the vision model's assessment of page 1 of a receipt.
type VisionOpinion struct {
	Verified      bool       `json:"verified"`
	Confidence    float64    `json:"confidence"`
	ExtractedData VisionData `json:"extractedData"`
	RawAnalysis   string     `json:"rawAnalysis"`
	Warning       string     `json:"warning,omitempty"`
}

// PageRenderer rasterizes the first page of a PDF.
type PageRenderer interface {
	FirstPagePNG(pdf []byte) ([]byte, error)
}

// VisionVerifier gets a vision opinion from a multimodal Model.
type VisionVerifier struct {
	model    Model
	renderer PageRenderer
}

// NewVisionVerifier creates a new VisionVerifier
func NewVisionVerifier(model Model, renderer PageRenderer) *VisionVerifier {
	return &VisionVerifier{model: model, renderer: renderer}
}

// Analyze renders page 1 of pdf and asks the model to read it.
// Every failure wraps ErrVisionFailed.
func (v *VisionVerifier) Analyze(ctx context.Context, pdf []byte) (*VisionOpinion, error) {
	image, err := v.renderer.FirstPagePNG(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering page: %w", ErrVisionFailed, err)
	}

	reply, err := v.model.Complete(ctx, Request{
		Prompt:      visionPrompt,
		ImagePNG:    image,
		Temperature: DefaultTemperature,
		MaxTokens:   visionMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVisionFailed, err)
	}

	return ParseVision(reply), nil
}

// ParseVision reads a "Label: value" per line reply. Unknown labels are ignored.
func ParseVision(reply string) *VisionOpinion {
	opinion := &VisionOpinion{RawAnalysis: reply}

	for _, line := range strings.Split(reply, "\n") {
		label, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		label = strings.ToLower(strings.Trim(label, " \t\r*-•"))
		value = strings.TrimSpace(value)

		switch label {
		case "amount":
			opinion.ExtractedData.Amount = amountChars(value)
		case "date":
			opinion.ExtractedData.Date = value
		case "bank":
			opinion.ExtractedData.BankName = value
		case "operation":
			opinion.ExtractedData.OperationType = value
		case "sender":
			opinion.ExtractedData.Sender = present(value)
		case "recipient":
			opinion.ExtractedData.Recipient = present(value)
		case "reference":
			opinion.ExtractedData.Reference = present(value)
		case "legitimate":
			opinion.Verified = strings.EqualFold(value, "yes")
		case "confidence":
			opinion.Confidence = percent(value)
		case "warning":
			opinion.Warning = present(value)
		}
	}

	return opinion
}

// present maps placeholder answers to absent.
func present(value string) string {
	if value == "" || strings.EqualFold(value, "N/A") || strings.EqualFold(value, "None") {
		return ""
	}
	return value
}

func amountChars(value string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, value)
}

// percent parses the leading integer of value as a percentage clamped to [0,1].
func percent(value string) float64 {
	end := 0
	for end < len(value) && (value[end] >= '0' && value[end] <= '9' || (end == 0 && value[end] == '-')) {
		end++
	}
	n, err := strconv.Atoi(value[:end])
	if errors.Is(err, strconv.ErrRange) {
		if value[0] == '-' {
			return 0
		}
		return 1
	}
	if err != nil {
		return 0
	}
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 1
	}
	return float64(n) / 100
}
