package check

import (
	"encoding/json"
	"fmt"

	"github.com/zombor/check-verifier/internal/ai"
	"github.com/zombor/check-verifier/internal/classify"
	"github.com/zombor/check-verifier/internal/pdfdoc"
)

// VisionStatus tells why a report does or does not carry a vision opinion.
type VisionStatus string

const (
	VisionOK      VisionStatus = "ok"
	VisionFailed  VisionStatus = "failed"
	VisionSkipped VisionStatus = "skipped"
)

// Finding is an (ok, label) pair. It is encoded as [ok, label].
type Finding struct {
	OK    bool
	Label string
}

func findingFrom(f pdfdoc.Finding) Finding {
	return Finding{OK: f.OK, Label: f.Label}
}

// MarshalJSON encodes the finding as a two element array
func (f Finding) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.OK, f.Label})
}

// UnmarshalJSON decodes a two element array
func (f *Finding) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("finding must have 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &f.OK); err != nil {
		return fmt.Errorf("finding ok: %w", err)
	}
	if err := json.Unmarshal(raw[1], &f.Label); err != nil {
		return fmt.Errorf("finding label: %w", err)
	}
	return nil
}

// Results are the heuristic checks derived from the file bytes.
type Results struct {
	FileSize Finding `json:"fileSize"`
	PageSize Finding `json:"pageSize"`
	Font     Finding `json:"font"`
	Metadata string  `json:"metadata"`
}

// VerificationReport is the outcome of verifying one receipt.
type VerificationReport struct {
	ID             string                   `json:"id"`
	Timestamp      string                   `json:"timestamp"`
	FileName       string                   `json:"fileName"`
	FileURL        string                   `json:"fileUrl"`
	Bank           classify.Bank            `json:"bank"`
	CheckType      classify.CheckType       `json:"checkType"`
	OperationID    string                   `json:"operationId,omitempty"`
	Results        Results                  `json:"results"`
	Signals        pdfdoc.StructuralSignals `json:"signals"`
	AIVerification *ai.TextOpinion          `json:"aiVerification,omitempty"`
	VisionAnalysis *ai.VisionOpinion        `json:"visionAnalysis,omitempty"`
	VisionStatus   VisionStatus             `json:"visionStatus"`
}

// Classification returns the bank and check type the report settled on.
func (r *VerificationReport) Classification() classify.Classification {
	return classify.Classification{Bank: r.Bank, CheckType: r.CheckType}
}

// StoredCheck is a history entry.
type StoredCheck struct {
	ID        string             `json:"id"`
	Timestamp string             `json:"timestamp"`
	FileName  string             `json:"fileName"`
	FileURL   string             `json:"fileUrl"`
	Report    VerificationReport `json:"report"`
}

// Upload is one file submitted for verification.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Outcome is the result of one file in a batch. Exactly one of Report and Err is set.
type Outcome struct {
	FileName string
	Report   *VerificationReport
	Err      error
}
