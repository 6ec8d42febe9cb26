// Package server provides the HTTP server for the guided audio service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// PromptRequest describes one prompt of a session.
type PromptRequest struct {
	// ID is the stable prompt identifier.
	ID string `json:"id" validate:"required"`
	// Text is the display text.
	Text string `json:"text"`
	// AudioRef is the narration clip asset key. Empty for text-only prompts.
	AudioRef string `json:"audio_ref"`
	// SilenceAfter is the pause after the prompt in seconds.
	SilenceAfter float64 `json:"silence_after" validate:"min=0,max=3600"`
	// Expandable allows the pause to grow toward the target duration.
	Expandable bool `json:"expandable"`
	// SilenceMax caps an expandable pause. Zero means no ceiling.
	SilenceMax float64 `json:"silence_max" validate:"min=0"`
}

// CreateSessionRequest is the HTTP request body for creating a session.
// Omitted layout fields fall back to the server defaults.
type CreateSessionRequest struct {
	Prompts        []PromptRequest `json:"prompts" validate:"required,min=1,max=500,unique=ID,dive"`
	PreRollDelay   *float64        `json:"pre_roll_delay" validate:"omitempty,min=0,max=60"`
	Preamble       *float64        `json:"preamble" validate:"omitempty,min=0,max=120"`
	FinalSilence   *float64        `json:"final_silence" validate:"omitempty,min=0,max=60"`
	TargetDuration float64         `json:"target_duration" validate:"min=0,max=86400"`
}

// CreateSessionResponse is the HTTP response after creating a session.
type CreateSessionResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// TimeMapEntryResponse locates one prompt inside the composed stream.
type TimeMapEntryResponse struct {
	PromptID   string  `json:"prompt_id"`
	Index      int     `json:"index"`
	AudioStart float64 `json:"audio_start"`
	AudioEnd   float64 `json:"audio_end"`
	SlotEnd    float64 `json:"slot_end"`
}

// TimeMapResponse is the HTTP response for the time map endpoint.
type TimeMapResponse struct {
	// Duration is the absolute stream length in seconds.
	Duration float64 `json:"duration"`
	// Preamble is the lead-in before the first prompt.
	Preamble float64 `json:"preamble"`
	// Offset is the absolute time of the first byte of the current stream.
	// It is non-zero after a resize.
	Offset  float64                `json:"offset"`
	TimeMap []TimeMapEntryResponse `json:"time_map"`
}

// BeginResponse is the HTTP response after a session begins playing.
type BeginResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	// Total is the user-visible session length, preamble excluded.
	Total   float64                `json:"total"`
	TimeMap []TimeMapEntryResponse `json:"time_map"`
}

// ProgressResponse is the HTTP response for session state and progress.
type ProgressResponse struct {
	ID          string  `json:"id"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	Elapsed     float64 `json:"elapsed"`
	Total       float64 `json:"total"`
	ShowTimer   bool    `json:"show_timer"`
	IsPaused    bool    `json:"is_paused"`
	PromptIndex int     `json:"prompt_index"`
	PromptID    string  `json:"prompt_id,omitempty"`
	TextVisible bool    `json:"text_visible"`
	Muted       bool    `json:"muted"`
	Degraded    bool    `json:"degraded"`
	Error       string  `json:"error,omitempty"`
}

// SessionSummary is one item of the session listing.
type SessionSummary struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Owner bool   `json:"owner"`
}

// SeekRequest is the HTTP request body for seeking.
type SeekRequest struct {
	// Seconds is the user-visible position, preamble excluded.
	Seconds float64 `json:"seconds" validate:"min=0"`
}

// ResizeRequest is the HTTP request body for retargeting a session.
type ResizeRequest struct {
	TargetDuration float64 `json:"target_duration" validate:"gt=0,max=86400"`
}

// VisibilityRequest relays host visibility changes.
type VisibilityRequest struct {
	Hidden bool `json:"hidden"`
}

// MuteResponse is the HTTP response after toggling mute.
type MuteResponse struct {
	Muted bool `json:"muted"`
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
	// Sessions is the number of stored sessions.
	Sessions int `json:"sessions"`
}
