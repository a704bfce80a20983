package check

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/check-verifier/internal/ai"
	"github.com/zombor/check-verifier/internal/bankapi"
	"github.com/zombor/check-verifier/internal/pdfdoc"
)

// maxFilesPerRequest bounds how many file parts one verify request may carry.
const maxFilesPerRequest = 10

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"error": message}
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var apiErr *ai.APIError
	switch {
	case errors.Is(err, ErrInvalidInputType), errors.Is(err, bankapi.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pdfdoc.ErrTextExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ai.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ai.ErrServiceUnavailable),
		errors.Is(err, ai.ErrMalformedResponse),
		errors.Is(err, ai.ErrTransport),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeServiceError logs err and writes its localized message
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "error", err)
	}
	writeError(w, UserMessage(err), status)
}

// handleHealth reports that the process is serving
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// outcomeResponse is one file's entry in a verify response
type outcomeResponse struct {
	FileName string              `json:"fileName"`
	Status   int                 `json:"status"`
	Report   *VerificationReport `json:"report,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// uploadContentType returns the declared type of a part, falling back to
// the file extension when the client sent none.
func uploadContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); byExt != "" {
		return byExt
	}
	if strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return pdfContentType
	}
	return "application/octet-stream"
}

// readUpload reads at most limit+1 bytes so oversize files are detected
// without buffering all of them.
func readUpload(header *multipart.FileHeader, limit int64) (Upload, error) {
	f, err := header.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return Upload{}, fmt.Errorf("reading upload: %w", err)
	}
	return Upload{
		FileName:    header.Filename,
		ContentType: uploadContentType(header),
		Data:        data,
	}, nil
}

// handleVerify verifies every "file" part of a multipart upload
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	limit := s.service.MaxUploadSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit*maxFilesPerRequest+(1<<20))

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, UserMessage(&FileTooLargeError{Size: maxErr.Limit, Limit: limit}), http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Ошибка разбора формы", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, "Файл не выбран. Пожалуйста, выберите файл для загрузки.", http.StatusBadRequest)
		return
	}
	if len(headers) > maxFilesPerRequest {
		writeError(w, fmt.Sprintf("Слишком много файлов. Максимум: %d", maxFilesPerRequest), http.StatusBadRequest)
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		up, err := readUpload(header, limit)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, "Ошибка чтения файла. Пожалуйста, попробуйте еще раз.", http.StatusInternalServerError)
			return
		}
		uploads = append(uploads, up)
	}

	outcomes := s.service.VerifyBatch(r.Context(), uploads)

	response := make([]outcomeResponse, 0, len(outcomes))
	failed := 0
	firstFailure := 0
	for _, o := range outcomes {
		entry := outcomeResponse{FileName: o.FileName, Status: http.StatusCreated, Report: o.Report}
		if o.Err != nil {
			entry.Status = statusFor(o.Err)
			entry.Error = UserMessage(o.Err)
			if failed == 0 {
				firstFailure = entry.Status
			}
			failed++
		}
		response = append(response, entry)
	}

	status := http.StatusCreated
	switch {
	case failed == len(outcomes):
		status = firstFailure
	case failed > 0:
		status = http.StatusOK
	}
	writeJSON(w, status, response)
}

// handleListHistory returns stored checks newest first
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListHistory(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleClearHistory empties the history
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearHistory(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetCheck returns a single stored check
func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.GetCheck(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleGetCheckFile returns the uploaded PDF of a stored check
func (s *Server) handleGetCheckFile(w http.ResponseWriter, r *http.Request) {
	data, entry, err := s.service.GetCheckFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", pdfContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": entry.FileName}))
	w.Write(data)
}

// handleExportReport renders a stored check's report as a PDF
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.ExportReport(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", pdfContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "report-" + id + ".pdf"}))
	w.Write(data)
}

// handleBankVerify asks the issuing bank about an operation
func (s *Server) handleBankVerify(w http.ResponseWriter, r *http.Request) {
	var req BankRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, "Неверные параметры запроса", http.StatusBadRequest)
		return
	}

	verification, err := s.service.VerifyWithBank(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}
