// Package server provides the HTTP studio API for recording speech datasets.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// DatasetsResponse lists the datasets available for recording.
type DatasetsResponse struct {
	Datasets []string `json:"datasets"`
}

// SentenceResponse is the next sentence a speaker should read.
type SentenceResponse struct {
	// ID is the sentence identifier; the saved take is named <id>.wav.
	ID string `json:"id"`
	// Text is the sentence to read aloud.
	Text string `json:"text"`
	// TextDirection is "ltr" or "rtl".
	TextDirection string `json:"text_direction"`
	// Remaining is the number of sentences left, including this one.
	Remaining int `json:"remaining"`
}

// CreateTakeRequest is the HTTP request body for uploading a take.
type CreateTakeRequest struct {
	// SentenceID is the sentence that was read.
	SentenceID string `json:"sentence_id" validate:"required"`
	// AudioBase64 is the base64-encoded recording, WAV or any format ffmpeg reads.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
}

// FormatResponse describes PCM audio.
type FormatResponse struct {
	SampleRate int `json:"sample_rate"`
	BitDepth   int `json:"bit_depth"`
	Channels   int `json:"channels"`
}

// TakeResponse is the HTTP representation of a take.
type TakeResponse struct {
	ID         string         `json:"id"`
	Dataset    string         `json:"dataset"`
	SentenceID string         `json:"sentence_id"`
	Text       string         `json:"text"`
	Status     string         `json:"status"`
	Format     FormatResponse `json:"format"`
	// OriginalSamples is the interleaved sample count as recorded.
	OriginalSamples int `json:"original_samples"`
	// TrimmedSamples is set once the take is saved.
	TrimmedSamples int `json:"trimmed_samples,omitempty"`
	// Fallback is true when the take was committed exactly as recorded.
	Fallback   bool      `json:"fallback,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	MirrorURL  string    `json:"mirror_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
