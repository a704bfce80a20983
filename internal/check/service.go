package check

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/check-verifier/internal/ai"
	"github.com/zombor/check-verifier/internal/bankapi"
	"github.com/zombor/check-verifier/internal/classify"
	"github.com/zombor/check-verifier/internal/pdfdoc"
)

const (
	// DefaultMaxUploadSize is the largest file Verify accepts by default (10 MiB).
	DefaultMaxUploadSize int64 = 10 << 20

	// DefaultBatchConcurrency bounds how many uploads VerifyBatch runs at once.
	DefaultBatchConcurrency = 4

	// confidenceThreshold is the text opinion confidence above which its
	// classification replaces the heuristic one. Strictly greater.
	confidenceThreshold = 0.8

	pdfContentType = "application/pdf"
)

// TextExtractor turns a PDF into plain text
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// Classifier guesses bank and transfer type from text
type Classifier interface {
	Classify(text string) classify.Classification
}

// TextVerifier asks a text model for its opinion. Required.
type TextVerifier interface {
	Verify(ctx context.Context, in ai.TextInput) (*ai.TextOpinion, error)
}

// VisionVerifier asks a vision model for its opinion. Optional.
type VisionVerifier interface {
	Analyze(ctx context.Context, pdf []byte) (*ai.VisionOpinion, error)
}

// HistoryStore persists completed checks
type HistoryStore interface {
	Save(ctx context.Context, entry StoredCheck) error
	List(ctx context.Context) ([]StoredCheck, error)
	Get(ctx context.Context, id string) (*StoredCheck, error)
	Clear(ctx context.Context) error
}

// BankVerifier looks an operation up at the issuing bank
type BankVerifier interface {
	Verify(ctx context.Context, bank classify.Bank, op bankapi.Operation) (*bankapi.Verification, error)
}

// ReportExporter renders text lines as a PDF
type ReportExporter interface {
	RenderText(title string, lines []string) ([]byte, error)
}

// IDGenerator generates unique IDs for reports
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random (version 4) UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Dependencies are the collaborators a Service is built from. Vision, Bank
// and Exporter may be nil.
type Dependencies struct {
	Extractor  TextExtractor
	Classifier Classifier
	Text       TextVerifier
	Vision     VisionVerifier
	History    HistoryStore
	Storage    Storage
	Bank       BankVerifier
	Exporter   ReportExporter
}

// Options tune a Service. Zero values select the defaults.
type Options struct {
	MaxUploadSize    int64
	BatchConcurrency int
}

// Service verifies receipts and manages their history
type Service struct {
	deps        Dependencies
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID ids and the wall clock
func NewService(deps Dependencies, opts Options) *Service {
	return NewServiceWithDeps(deps, opts, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(deps Dependencies, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.DefaultClassifier()
	}
	if deps.Exporter == nil {
		deps.Exporter = pdfdoc.NewExporter("")
	}
	return &Service{
		deps:        deps,
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// MaxUploadSize is the largest accepted file in bytes
func (s *Service) MaxUploadSize() int64 {
	return s.opts.MaxUploadSize
}

func isPDF(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.EqualFold(mediaType, pdfContentType)
}

// storedName returns the storage name for a check's uploaded file.
func storedName(id, fileName string) string {
	return fmt.Sprintf("%s_%s", id, sanitizeFilename(fileName))
}

// fileURL returns the API path serving a check's uploaded file.
func fileURL(id string) string {
	return "/api/history/" + id + "/file"
}

// Verify runs one upload through extraction, classification and both AI
// opinions, then stores the file and the resulting report.
func (s *Service) Verify(ctx context.Context, up Upload) (*VerificationReport, error) {
	log := slog.With("file", up.FileName)

	if !isPDF(up.ContentType) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidInputType, up.ContentType)
	}
	if size := int64(len(up.Data)); size > s.opts.MaxUploadSize {
		return nil, &FileTooLargeError{Size: size, Limit: s.opts.MaxUploadSize}
	}

	var (
		text    string
		sniffed pdfdoc.Sniffed
	)
	var extract errgroup.Group
	extract.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("extracting text: %w (panic: %v)", pdfdoc.ErrCorrupted, r)
			}
		}()
		t, err := s.deps.Extractor.ExtractText(up.Data)
		if err != nil {
			return fmt.Errorf("extracting text: %w", err)
		}
		text = t
		return nil
	})
	extract.Go(func() error {
		sniffed = pdfdoc.Sniff(up.Data)
		return nil
	})
	if err := extract.Wait(); err != nil {
		log.Error("Failed to extract text", "size", len(up.Data), "error", err)
		return nil, err
	}

	heuristic := s.deps.Classifier.Classify(text)
	log.Debug("Classified receipt", "bank", heuristic.Bank, "check_type", heuristic.CheckType)

	opinion, vision, visionErr, err := s.opinions(ctx, up, text, sniffed)
	if err != nil {
		log.Error("Failed to get text opinion", "error", err)
		return nil, err
	}

	id := s.idGenerator.Generate()
	report := &VerificationReport{
		ID:             id,
		Timestamp:      s.timeSource.Now().UTC().Format(time.RFC3339),
		FileName:       up.FileName,
		FileURL:        fileURL(id),
		Bank:           heuristic.Bank,
		CheckType:      heuristic.CheckType,
		OperationID:    classify.ExtractOperationID(text),
		Results:        results(sniffed),
		Signals:        sniffed.Signals,
		AIVerification: opinion,
		VisionStatus:   VisionSkipped,
	}

	switch {
	case s.deps.Vision == nil:
	case visionErr != nil:
		log.Warn("Vision analysis failed", "error", visionErr)
		report.VisionStatus = VisionFailed
	default:
		report.VisionAnalysis = vision
		report.VisionStatus = VisionOK
	}

	if opinion.Confidence > confidenceThreshold {
		report.Bank = opinion.CheckData.Bank
		report.CheckType = opinion.CheckData.CheckType
	}
	if report.OperationID == "" {
		report.OperationID = opinion.CheckData.OperationID
	}

	if err := s.store(ctx, report, up.Data); err != nil {
		log.Error("Failed to store check", "id", id, "error", err)
		return nil, err
	}

	log.Info("Verified receipt",
		"id", id,
		"bank", report.Bank,
		"check_type", report.CheckType,
		"legitimacy", opinion.Legitimacy,
		"confidence", opinion.Confidence,
		"vision", report.VisionStatus,
	)
	return report, nil
}

// opinions asks the text and vision models in parallel. Only a text failure
// is returned as err; a vision failure comes back as visionErr.
func (s *Service) opinions(ctx context.Context, up Upload, text string, sniffed pdfdoc.Sniffed) (opinion *ai.TextOpinion, vision *ai.VisionOpinion, visionErr error, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("verifying text: panic: %v", r)
			}
		}()
		o, err := s.deps.Text.Verify(gctx, ai.TextInput{
			ExtractedText: text,
			FileSize:      sniffed.FileSize.Label,
			PageSize:      sniffed.PageSize.Label,
			Metadata:      sniffed.Metadata,
			FileName:      up.FileName,
		})
		if err != nil {
			return fmt.Errorf("verifying text: %w", err)
		}
		opinion = o
		return nil
	})
	if s.deps.Vision != nil {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					vision, visionErr = nil, fmt.Errorf("analyzing image: panic: %v", r)
				}
			}()
			vision, visionErr = s.deps.Vision.Analyze(gctx, up.Data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return opinion, vision, visionErr, nil
}

func results(sniffed pdfdoc.Sniffed) Results {
	return Results{
		FileSize: findingFrom(sniffed.FileSize),
		PageSize: findingFrom(sniffed.PageSize),
		Font:     findingFrom(sniffed.Font),
		Metadata: sniffed.Metadata,
	}
}

// store saves the uploaded file, then the history entry. The file is
// removed again when the history write fails.
func (s *Service) store(ctx context.Context, report *VerificationReport, data []byte) error {
	savedName, err := s.deps.Storage.Save(ctx, storedName(report.ID, report.FileName), data)
	if err != nil {
		return fmt.Errorf("saving file: %w", err)
	}

	entry := StoredCheck{
		ID:        report.ID,
		Timestamp: report.Timestamp,
		FileName:  report.FileName,
		FileURL:   report.FileURL,
		Report:    *report,
	}
	if err := s.deps.History.Save(ctx, entry); err != nil {
		if delErr := s.deps.Storage.Delete(ctx, savedName); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedName, "error", delErr)
		}
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// VerifyBatch verifies every upload independently. Outcomes are returned in
// input order and one failure never affects another upload.
func (s *Service) VerifyBatch(ctx context.Context, uploads []Upload) []Outcome {
	outcomes := make([]Outcome, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.opts.BatchConcurrency)
	for i, up := range uploads {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Verification panicked", "file", up.FileName, "panic", r)
					outcomes[i] = Outcome{FileName: up.FileName, Err: fmt.Errorf("verifying %s: panic: %v", up.FileName, r)}
				}
			}()
			report, err := s.Verify(ctx, up)
			outcomes[i] = Outcome{FileName: up.FileName, Report: report, Err: err}
			return nil
		})
	}
	g.Wait()

	return outcomes
}

// ListHistory returns stored checks newest first
func (s *Service) ListHistory(ctx context.Context) ([]StoredCheck, error) {
	entries, err := s.deps.History.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	if entries == nil {
		entries = []StoredCheck{}
	}
	return entries, nil
}

// GetCheck retrieves a stored check by ID
func (s *Service) GetCheck(ctx context.Context, id string) (*StoredCheck, error) {
	entry, err := s.deps.History.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting check: %w", err)
	}
	return entry, nil
}

// GetCheckFile retrieves the uploaded PDF of a stored check
func (s *Service) GetCheckFile(ctx context.Context, id string) ([]byte, *StoredCheck, error) {
	entry, err := s.GetCheck(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.deps.Storage.Get(ctx, storedName(entry.ID, entry.FileName))
	if err != nil {
		return nil, nil, fmt.Errorf("getting check file: %w", err)
	}
	return data, entry, nil
}

// ClearHistory empties the history and removes the stored files it referenced
func (s *Service) ClearHistory(ctx context.Context) error {
	entries, err := s.deps.History.List(ctx)
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}

	if err := s.deps.History.Clear(ctx); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	for _, entry := range entries {
		name := storedName(entry.ID, entry.FileName)
		if err := s.deps.Storage.Delete(ctx, name); err != nil {
			slog.Warn("Failed to delete file", "filename", name, "error", err)
		}
	}
	return nil
}

// ExportReport renders a stored check's report as a PDF
func (s *Service) ExportReport(ctx context.Context, id string) ([]byte, error) {
	entry, err := s.GetCheck(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := s.deps.Exporter.RenderText(reportTitle, ReportLines(&entry.Report))
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return data, nil
}

// BankRequest asks the bank about an operation. When CheckID is set, a
// missing bank or operation id is taken from that stored check.
type BankRequest struct {
	CheckID string        `json:"checkId,omitempty"`
	Bank    classify.Bank `json:"bank,omitempty"`
	bankapi.Operation
}

// VerifyWithBank looks an operation up at the issuing bank
func (s *Service) VerifyWithBank(ctx context.Context, req BankRequest) (*bankapi.Verification, error) {
	if s.deps.Bank == nil {
		return nil, fmt.Errorf("%w: bank verification is not configured", bankapi.ErrInvalidRequest)
	}

	if req.CheckID != "" {
		entry, err := s.GetCheck(ctx, req.CheckID)
		if err != nil {
			return nil, err
		}
		if req.Bank == "" {
			req.Bank = entry.Report.Bank
		}
		if req.OperationID == "" {
			req.OperationID = entry.Report.OperationID
		}
	}

	verification, err := s.deps.Bank.Verify(ctx, req.Bank, req.Operation)
	if err != nil {
		return nil, fmt.Errorf("verifying with bank: %w", err)
	}
	return verification, nil
}
