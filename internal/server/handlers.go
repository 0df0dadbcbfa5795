package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/speech-dataset-maker/internal/audio"
	"github.com/maauso/speech-dataset-maker/internal/dataset"
	"github.com/maauso/speech-dataset-maker/internal/take"
)

// DefaultMaxUploadBytes caps the JSON body of a take upload.
const DefaultMaxUploadBytes = 64 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *take.Service
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes limits the size of take upload bodies.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *take.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListDatasets handles GET /datasets requests.
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.ListDatasets(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list datasets")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, DatasetsResponse{Datasets: names})
}

// NextSentence handles GET /datasets/{name}/next requests.
func (h *Handlers) NextSentence(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.service.NextSentence(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeServiceError(w, err, "next sentence")
		return
	}
	writeJSON(w, http.StatusOK, SentenceResponse{
		ID:            prompt.Sentence.ID,
		Text:          prompt.Sentence.Text,
		TextDirection: prompt.TextDirection,
		Remaining:     prompt.Remaining,
	})
}

// CreateTake handles POST /datasets/{name}/takes requests.
func (h *Handlers) CreateTake(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req CreateTakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_base64 is not valid base64", "VALIDATION_ERROR")
		return
	}

	created, err := h.service.CreateTake(r.Context(), r.PathValue("name"), req.SentenceID, bytes.NewReader(data))
	if err != nil {
		h.writeServiceError(w, err, "create take")
		return
	}
	writeJSON(w, http.StatusCreated, toTakeResponse(created))
}

// GetTake handles GET /takes/{id} requests.
func (h *Handlers) GetTake(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTake(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "get take")
		return
	}
	writeJSON(w, http.StatusOK, toTakeResponse(t))
}

// GetTakeAudio handles GET /takes/{id}/audio requests by streaming the WAV.
func (h *Handlers) GetTakeAudio(w http.ResponseWriter, r *http.Request) {
	takeID := r.PathValue("id")
	rc, err := h.service.OpenAudio(r.Context(), takeID)
	if err != nil {
		h.writeServiceError(w, err, "open take audio")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/wav")
	// Scratch and dataset files are seekable, which gives players Range support.
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, takeID+".wav", time.Time{}, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream take audio",
			slog.String("take_id", takeID),
			slog.String("error", err.Error()),
		)
	}
}

// SaveTake handles POST /takes/{id}/save requests.
func (h *Handlers) SaveTake(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.SaveTake(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "save take")
		return
	}
	writeJSON(w, http.StatusOK, toTakeResponse(t))
}

// DiscardTake handles DELETE /takes/{id} requests.
func (h *Handlers) DiscardTake(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.DiscardTake(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "discard take")
		return
	}
	writeJSON(w, http.StatusOK, toTakeResponse(t))
}

// writeServiceError maps domain errors to HTTP status codes and error codes.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, dataset.ErrDatasetNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "DATASET_NOT_FOUND")
	case errors.Is(err, dataset.ErrNoSentences):
		writeError(w, http.StatusNotFound, "no sentence remaining", "NO_SENTENCE_REMAINING")
	case errors.Is(err, dataset.ErrSentenceNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "SENTENCE_NOT_FOUND")
	case errors.Is(err, take.ErrTakeNotFound):
		writeError(w, http.StatusNotFound, "take not found", "TAKE_NOT_FOUND")
	case errors.Is(err, take.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_TAKE_STATE")
	case errors.Is(err, take.ErrAudioUnavailable):
		writeError(w, http.StatusGone, err.Error(), "AUDIO_UNAVAILABLE")
	case errors.Is(err, take.ErrUnsupportedAudio), errors.Is(err, audio.ErrFormatMismatch):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_AUDIO")
	default:
		h.logger.Error("request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op, "INTERNAL_ERROR")
	}
}

func toTakeResponse(t *take.Take) TakeResponse {
	return TakeResponse{
		ID:         t.ID,
		Dataset:    t.Dataset,
		SentenceID: t.SentenceID,
		Text:       t.Text,
		Status:     string(t.Status),
		Format: FormatResponse{
			SampleRate: t.Format.SampleRate,
			BitDepth:   t.Format.BitDepth,
			Channels:   t.Format.Channels,
		},
		OriginalSamples: t.OriginalSamples,
		TrimmedSamples:  t.TrimmedSamples,
		Fallback:        t.Fallback,
		OutputPath:      t.OutputPath,
		MirrorURL:       t.MirrorURL,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
