package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/metrics"
	"github.com/Brownie44l1/skinlens/internal/model"
	"github.com/Brownie44l1/skinlens/internal/prediction"
	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

// errBadRequest marks request-shape problems found before preprocessing.
var errBadRequest = errors.New("bad request")

type Options struct {
	MaxUploadSize int64
	// LegacyErrorStatus answers failures with 200 and relies on the success flag alone.
	LegacyErrorStatus bool
}

type Handler struct {
	modelServer *model.Server
	metrics     *metrics.Metrics
	log         *zap.Logger
	opts        Options
}

func NewHandler(modelServer *model.Server, m *metrics.Metrics, log *zap.Logger, opts Options) *Handler {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 10 << 20
	}
	return &Handler{
		modelServer: modelServer,
		metrics:     m,
		log:         log,
		opts:        opts,
	}
}

// Root answers liveness checks.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Skin Cancer Classification API",
		"status":  "running",
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"backend": string(h.modelServer.Backend),
		"model":   h.modelServer.Metadata.Version,
	})
}

// Predict classifies a multipart upload with fields "image" (file) and
// "metadata" (JSON string).
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, prediction.Failure(errors.New("method not allowed")))
		return
	}

	imageBytes, metadata, err := h.readForm(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}

	result, err := h.modelServer.Predict(r.Context(), imageBytes, metadata)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.metrics.Outcome("predict", string(result.Label))
	writeJSON(w, http.StatusOK, prediction.Success(result))
}

func (h *Handler) readForm(w http.ResponseWriter, r *http.Request) ([]byte, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(h.opts.MaxUploadSize); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse form: %v", errBadRequest, err)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no image file provided, use 'image' as the form field name", errBadRequest)
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read image: %v", errBadRequest, err)
	}

	if _, ok := r.MultipartForm.Value["metadata"]; !ok {
		return nil, nil, fmt.Errorf("%w: metadata form field is required", errBadRequest)
	}

	h.log.Debug("Received file",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))

	return imageBytes, []byte(r.FormValue("metadata")), nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, preprocess.ErrInvalidImage),
		errors.Is(err, preprocess.ErrInvalidMetadata):
		status = http.StatusBadRequest
		h.log.Info("Rejected prediction request", zap.Error(err))
	default:
		h.log.Error("Prediction error", zap.Error(err))
	}

	h.metrics.Outcome("predict", "error")
	if h.opts.LegacyErrorStatus {
		status = http.StatusOK
	}
	writeJSON(w, status, prediction.Failure(err))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
