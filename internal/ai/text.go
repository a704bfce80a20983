package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/check-verifier/internal/classify"
)

// Legitimacy is the model's verdict on a receipt.
type Legitimacy string

const (
	Legitimate Legitimacy = "legitimate"
	Suspicious Legitimacy = "suspicious"
	Forged     Legitimacy = "forged"
)

func (l Legitimacy) valid() bool {
	return l == Legitimate || l == Suspicious || l == Forged
}

// TextInput is what the text model is shown about a receipt.
type TextInput struct {
	ExtractedText string
	FileSize      string
	PageSize      string
	Metadata      string
	FileName      string
}

// CheckData is the model's own classification plus any details it found.
type CheckData struct {
	Bank           classify.Bank      `json:"bank"`
	CheckType      classify.CheckType `json:"checkType"`
	OperationID    string             `json:"operationId,omitempty"`
	TransferDate   string             `json:"transferDate,omitempty"`
	Recipient      string             `json:"recipient,omitempty"`
	RecipientPhone string             `json:"recipientPhone,omitempty"`
}

// Classification returns the bank and check type the model settled on.
func (c CheckData) Classification() classify.Classification {
	return classify.Classification{Bank: c.Bank, CheckType: c.CheckType}
}

// TextOpinion is the text model's assessment of a receipt.
type TextOpinion struct {
	Conclusion       string            `json:"conclusion"`
	Legitimacy       Legitimacy        `json:"legitimacy"`
	Confidence       float64           `json:"confidence"`
	Warnings         []string          `json:"warnings"`
	CheckData        CheckData         `json:"checkData"`
	TechnicalDetails map[string]string `json:"technicalDetails"`
}

// TextVerifier gets a text opinion from a Model.
type TextVerifier struct {
	model Model
}

// NewTextVerifier creates a new TextVerifier
func NewTextVerifier(model Model) *TextVerifier {
	return &TextVerifier{model: model}
}

// Verify asks the model to judge the receipt described by in.
func (v *TextVerifier) Verify(ctx context.Context, in TextInput) (*TextOpinion, error) {
	reply, err := v.model.Complete(ctx, Request{
		Prompt:      buildTextPrompt(in),
		Temperature: DefaultTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("requesting text opinion: %w", err)
	}
	return ParseTextOpinion(reply)
}

func buildTextPrompt(in TextInput) string {
	metadata, _ := json.Marshal(in.Metadata)
	return fmt.Sprintf(textVerifyPrompt, in.ExtractedText, in.FileSize, in.PageSize, in.FileName, metadata)
}

// rawTextOpinion mirrors TextOpinion with pointers so missing fields are visible.
type rawTextOpinion struct {
	Conclusion *string       `json:"conclusion"`
	Legitimacy *Legitimacy   `json:"legitimacy"`
	Confidence *float64      `json:"confidence"`
	Warnings   []string      `json:"warnings"`
	CheckData  *rawCheckData `json:"checkData"`

	TechnicalDetails map[string]string `json:"technicalDetails"`
}

type rawCheckData struct {
	Bank           *classify.Bank      `json:"bank"`
	CheckType      *classify.CheckType `json:"checkType"`
	OperationID    string              `json:"operationId"`
	TransferDate   string              `json:"transferDate"`
	Recipient      string              `json:"recipient"`
	RecipientPhone string              `json:"recipientPhone"`
}

// ParseTextOpinion decodes a text model reply. The reply must be a single bare
// JSON object carrying every required field; markdown code blocks are rejected.
func ParseTextOpinion(reply string) (*TextOpinion, error) {
	var raw rawTextOpinion
	dec := json.NewDecoder(strings.NewReader(reply))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedResponse)
	}

	switch {
	case raw.Conclusion == nil:
		return nil, missingField("conclusion")
	case raw.Legitimacy == nil:
		return nil, missingField("legitimacy")
	case raw.Confidence == nil:
		return nil, missingField("confidence")
	case raw.CheckData == nil:
		return nil, missingField("checkData")
	case raw.CheckData.Bank == nil:
		return nil, missingField("checkData.bank")
	case raw.CheckData.CheckType == nil:
		return nil, missingField("checkData.checkType")
	}

	if !raw.Legitimacy.valid() {
		return nil, fmt.Errorf("%w: unknown legitimacy %q", ErrMalformedResponse, *raw.Legitimacy)
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, *raw.Confidence)
	}
	if !raw.CheckData.Bank.Valid() {
		return nil, fmt.Errorf("%w: unknown bank %q", ErrMalformedResponse, *raw.CheckData.Bank)
	}
	if !raw.CheckData.CheckType.Valid() {
		return nil, fmt.Errorf("%w: unknown check type %q", ErrMalformedResponse, *raw.CheckData.CheckType)
	}

	opinion := &TextOpinion{
		Conclusion: *raw.Conclusion,
		Legitimacy: *raw.Legitimacy,
		Confidence: *raw.Confidence,
		Warnings:   raw.Warnings,
		CheckData: CheckData{
			Bank:           *raw.CheckData.Bank,
			CheckType:      *raw.CheckData.CheckType,
			OperationID:    raw.CheckData.OperationID,
			TransferDate:   raw.CheckData.TransferDate,
			Recipient:      raw.CheckData.Recipient,
			RecipientPhone: raw.CheckData.RecipientPhone,
		},
		TechnicalDetails: raw.TechnicalDetails,
	}
	if opinion.Warnings == nil {
		opinion.Warnings = []string{}
	}
	if opinion.TechnicalDetails == nil {
		opinion.TechnicalDetails = map[string]string{}
	}
	return opinion, nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing required field %q", ErrMalformedResponse, name)
}
