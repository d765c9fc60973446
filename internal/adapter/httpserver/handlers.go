package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
	"github.com/xxjiinn/medical-inference-platform/internal/usecase"
)

// Server bundles the usecase services for the HTTP handlers.
type Server struct {
	Submit usecase.SubmitService
	Status usecase.StatusService
	Ops    usecase.OpsService

	// MaxUploadBytes caps the accepted image size.
	MaxUploadBytes int64
}

// NewServer constructs a Server.
func NewServer(submit usecase.SubmitService, status usecase.StatusService, ops usecase.OpsService, maxUpload int64) *Server {
	return &Server{Submit: submit, Status: status, Ops: ops, MaxUploadBytes: maxUpload}
}

type jobResponse struct {
	ID           int64           `json:"id"`
	Status       string          `json:"status"`
	InputSHA256  string          `json:"input_sha256"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	Deduplicated bool            `json:"deduplicated,omitempty"`
	Result       *resultResponse `json:"result,omitempty"`
}

type resultResponse struct {
	JobID     int64              `json:"job_id"`
	TopLabel  string             `json:"top_label"`
	Output    map[string]float64 `json:"output"`
	CreatedAt string             `json:"created_at"`
}

func toJobResponse(j domain.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		InputSHA256: j.InputSHA256,
		CreatedAt:   j.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   j.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toResultResponse(r domain.Result) *resultResponse {
	return &resultResponse{
		JobID:     r.JobID,
		TopLabel:  r.TopLabel,
		Output:    r.Output,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// SubmitJob handles POST /v1/jobs: a multipart form with an "image" part.
// Validation runs cheapest-first: size, media type sniff, then a full
// decode config check before any storage is touched.
func (s *Server) SubmitJob(w http.ResponseWriter, r *http.Request) {
	lg := LoggerFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.MaxUploadBytes + (1 << 20)); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrTooLarge, s.MaxUploadBytes), nil)
			return
		}
		writeError(w, r, fmt.Errorf("%w: malformed multipart body", domain.ErrInvalidArgument), nil)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing image field", domain.ErrInvalidArgument), nil)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, s.MaxUploadBytes+1))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: reading image", domain.ErrInvalidArgument), nil)
		return
	}
	if int64(len(data)) > s.MaxUploadBytes {
		writeError(w, r, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrTooLarge, s.MaxUploadBytes), nil)
		return
	}
	if len(data) == 0 {
		writeError(w, r, fmt.Errorf("%w: empty image", domain.ErrInvalidArgument), nil)
		return
	}

	// Sniff the real content type; the client-declared header is untrusted.
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		writeError(w, r, fmt.Errorf("%w: got %s", domain.ErrUnsupportedMedia, mt.String()), nil)
		return
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		writeError(w, r, fmt.Errorf("%w: undecodable %s payload", domain.ErrUnprocessable, mt.String()), nil)
		return
	}

	sub, err := s.Submit.Submit(r.Context(), data)
	if err != nil {
		lg.Error("submit failed", slog.Any("error", err))
		writeError(w, r, err, nil)
		return
	}

	resp := toJobResponse(sub.Job)
	status := http.StatusCreated
	if !sub.Created {
		resp.Deduplicated = true
		status = http.StatusOK
	}
	if sub.Result != nil {
		resp.Result = toResultResponse(*sub.Result)
	}
	lg.Info("submission handled",
		slog.Int64("job_id", sub.Job.ID),
		slog.Bool("created", sub.Created),
		slog.String("filename", header.Filename))
	writeJSON(w, status, resp)
}

// GetJob handles GET /v1/jobs/{id}.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	job, err := s.Status.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// GetResult handles GET /v1/jobs/{id}/result. A job that has not completed
// answers 409 with its current status in the details.
func (s *Server) GetResult(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	job, res, err := s.Status.Result(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeError(w, r, err, map[string]any{"status": string(job.Status)})
			return
		}
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

// OpsHealth handles GET /v1/ops/health.
func (s *Server) OpsHealth(w http.ResponseWriter, r *http.Request) {
	h := s.Ops.Health(r.Context())
	status := http.StatusOK
	if !h.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// OpsMetrics handles GET /v1/ops/metrics: rolling window aggregates.
func (s *Server) OpsMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.Ops.Metrics(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// OpsDLQ handles GET /v1/ops/dlq.
func (s *Server) OpsDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Ops.DLQ(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": entries, "count": len(entries)})
}

func jobID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: job id must be a positive integer", domain.ErrInvalidArgument)
	}
	return id, nil
}
