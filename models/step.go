package models

// StepRequest carries one line of model output to run against a device
type StepRequest struct {
	Text string `json:"text"`
}

// StepRecord is one persisted step execution
type StepRecord struct {
	ID         string `json:"id"`
	DeviceID   string `json:"device_id"`
	Text       string `json:"text"`
	Kind       string `json:"kind"`
	Success    bool   `json:"success"`
	Finished   bool   `json:"finished"`
	Cancelled  bool   `json:"cancelled"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// TouchRequest is a raw touch event forwarded to the virtual display
type TouchRequest struct {
	Phase string `json:"phase"` // down, move, up
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

// ConfirmRequest resolves a pending sensitive-action confirmation
type ConfirmRequest struct {
	ID      string `json:"id"`
	Approve bool   `json:"approve"`
}

// SessionStatus describes a device session for the API
type SessionStatus struct {
	DeviceID      string `json:"device_id"`
	State         string `json:"state"`
	Channel       string `json:"channel"`
	DisplayReady  bool   `json:"display_ready"`
	DisplayWidth  int    `json:"display_width"`
	DisplayHeight int    `json:"display_height"`
	DecoderActive bool   `json:"decoder_active"`
	LastError     string `json:"last_error,omitempty"`
}
