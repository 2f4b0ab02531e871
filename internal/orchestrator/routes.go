package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/filetype"
	"github.com/local/pdfvalidator/internal/limiter"
	"github.com/local/pdfvalidator/internal/statuscheck"
	"github.com/local/pdfvalidator/internal/verdict"
)

const (
	msgValid    = "PDF is valid"
	msgInvalid  = "PDF is invalid."
	msgFailed   = "An error occured while validating the PDF"
	msgNoFile   = "No PDF file uploaded"
	msgNotPDF   = "Invalid file type. Only PDF files are allowed."
	msgTooLarge = "File is too large"

	msgSourceDenied = "Document source not allowed"
	msgNotFound     = "Document not found"
	msgLoadFailed   = "Failed to load document"

	// multipart parts beyond this are spooled to temp files
	formMemory = 32 << 20
)

// Dependencies wires the HTTP surface to one classification strategy.
type Dependencies struct {
	Strategy verdict.Strategy
	Limiter  *limiter.Limiter
	Status   *statuscheck.Checker
	Loader   *Loader
	Detector *filetype.Detector
	// MaxUploadBytes caps the uploaded file size. 0 = no limit.
	MaxUploadBytes int64
	// DefaultBucket turns bare file_path values into s3://DefaultBucket/<path>.
	DefaultBucket string
}

// Service serves the validation endpoints.
type Service struct {
	deps Dependencies
}

func New(deps Dependencies) *Service {
	if deps.Loader == nil {
		deps.Loader = &Loader{MaxBytes: deps.MaxUploadBytes}
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	return &Service{deps: deps}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/validate-pdf", s.handleValidateUpload)
	mux.HandleFunc("/validate-ref", s.handleValidateRef)
}

type validateResp struct {
	Message          string          `json:"message,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	RequestID        string          `json:"requestId"`
	Result           *verdict.Result `json:"result,omitempty"`
}

type validateRefReq struct {
	FilePath string  `json:"file_path"`
	FileURL  string  `json:"file_url"`
	Password string  `json:"password"`
	Scale    float64 `json:"scale"`
}

func (s *Service) handleValidateUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	reqID := uuid.NewString()
	if s.deps.MaxUploadBytes > 0 {
		// leave room for the multipart envelope and the other form fields
		r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+1<<20)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, failure(reqID, start, msgTooLarge, err.Error()))
			return
		}
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, "invalid multipart form", err.Error()))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn().Err(err).Str("request_id", reqID).Msg("failed to remove multipart temp files")
		}
	}()

	file, hdr, err := r.FormFile("pdf")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, msgNoFile, ""))
		return
	}
	defer file.Close()

	doc, err := s.deps.Loader.ReadDocument(hdr.Filename, file)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, failure(reqID, start, msgTooLarge, err.Error()))
			return
		}
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, "failed to read upload", err.Error()))
		return
	}
	if err := s.deps.Detector.ValidateUpload(hdr.Filename, doc.Data); err != nil {
		log.Info().Str("request_id", reqID).Str("file", hdr.Filename).Err(err).Msg("upload rejected")
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, msgNotPDF, err.Error()))
		return
	}
	doc.Password = r.FormValue("password")
	if raw := strings.TrimSpace(r.FormValue("scale")); raw != "" {
		sc, err := strconv.ParseFloat(raw, 64)
		if err != nil || sc <= 0 {
			writeJSON(w, http.StatusBadRequest, failure(reqID, start, "scale must be a positive number", raw))
			return
		}
		doc.ScaleOverride = sc
	}
	s.validate(r.Context(), w, reqID, start, doc)
}

func (s *Service) handleValidateRef(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	start := time.Now()
	reqID := uuid.NewString()
	var req validateRefReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, "invalid json", err.Error()))
		return
	}
	if req.Scale < 0 {
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, "scale must be a positive number", ""))
		return
	}
	ref := s.resolveRef(req)
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, "missing file_path/file_url", ""))
		return
	}

	doc, err := s.deps.Loader.LoadDocument(r.Context(), ref)
	if err != nil {
		// clients get a fixed message per category; the cause stays in the log
		log.Warn().Err(err).Str("request_id", reqID).Str("ref", redactRef(ref)).Msg("failed to load document")
		switch {
		case errors.Is(err, ErrTooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, failure(reqID, start, msgTooLarge, ""))
		case errors.Is(err, ErrSourceNotAllowed):
			writeJSON(w, http.StatusForbidden, failure(reqID, start, msgSourceDenied, ""))
		case errors.Is(err, ErrSourceNotFound):
			writeJSON(w, http.StatusNotFound, failure(reqID, start, msgNotFound, ""))
		default:
			writeJSON(w, http.StatusBadRequest, failure(reqID, start, msgLoadFailed, ""))
		}
		return
	}
	if info := s.deps.Detector.Detect(doc.Data); !info.IsPDF {
		log.Info().Str("request_id", reqID).Str("ref", redactRef(ref)).Str("mime", info.Description).Msg("reference rejected")
		writeJSON(w, http.StatusBadRequest, failure(reqID, start, msgNotPDF, ""))
		return
	}
	doc.Password = req.Password
	doc.ScaleOverride = req.Scale
	s.validate(r.Context(), w, reqID, start, doc)
}

// resolveRef prefers file_path; bare paths are S3 keys when a default bucket is set.
func (s *Service) resolveRef(req validateRefReq) string {
	ref := strings.TrimSpace(req.FilePath)
	if ref == "" {
		return strings.TrimSpace(req.FileURL)
	}
	if s.deps.DefaultBucket == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") || filepath.IsAbs(ref) {
		return ref
	}
	return fmt.Sprintf("s3://%s/%s", s.deps.DefaultBucket, strings.TrimPrefix(ref, "/"))
}

func (s *Service) validate(ctx context.Context, w http.ResponseWriter, reqID string, start time.Time, doc verdict.Document) {
	logger := log.With().Str("request_id", reqID).Str("file", doc.Name).Int64("bytes", doc.Size()).Logger()
	if s.deps.Limiter != nil {
		release, err := s.deps.Limiter.Acquire(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("gave up waiting for a classification slot")
			s.writeError(w, reqID, start, err)
			return
		}
		defer release()
	}

	res, err := s.deps.Strategy.Classify(ctx, doc)
	if err != nil {
		logger.Error().Err(err).Str("kind", verdict.Kind(err)).Msg("validation failed")
		s.writeError(w, reqID, start, err)
		return
	}
	resp := validateResp{ProcessingTimeMs: time.Since(start).Milliseconds(), RequestID: reqID, Result: &res}
	if res.Valid() {
		resp.Message = msgValid
		logger.Info().Int("pages", res.PagesChecked).Int64("ms", resp.ProcessingTimeMs).Msg("pdf valid")
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Error = msgInvalid
	if res.BlankPage > 0 {
		resp.Message = fmt.Sprintf("page %d has no visible content", res.BlankPage)
	}
	logger.Info().Int("blank_page", res.BlankPage).Int64("ms", resp.ProcessingTimeMs).Msg("pdf invalid")
	writeJSON(w, http.StatusBadRequest, resp)
}

func (s *Service) writeError(w http.ResponseWriter, reqID string, start time.Time, err error) {
	switch verdict.Kind(err) {
	case "decode":
		writeJSON(w, http.StatusUnprocessableEntity, failure(reqID, start, "Unable to read the PDF", err.Error()))
	case "tool_unavailable":
		writeJSON(w, http.StatusServiceUnavailable, failure(reqID, start, "Validation backend unavailable", err.Error()))
	case "timeout":
		writeJSON(w, http.StatusGatewayTimeout, failure(reqID, start, "Validation timed out", err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, failure(reqID, start, msgFailed, err.Error()))
	}
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"strategy": s.deps.Strategy.Name()})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Status.Summary(r.Context()))
}

func failure(reqID string, start time.Time, msg, detail string) validateResp {
	return validateResp{Error: msg, Message: detail, ProcessingTimeMs: time.Since(start).Milliseconds(), RequestID: reqID}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
