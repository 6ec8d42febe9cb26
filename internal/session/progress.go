package session

// Progress is the snapshot reported to callers on every tick. Elapsed and
// Total are net of the preamble so user-visible timers start at zero after
// the opening cue.
type Progress struct {
	ID          string  `json:"id"`
	State       State   `json:"state"`
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
