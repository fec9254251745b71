package types

// UpdateRequest is an inbound chat message posted to POST /v1/updates.
type UpdateRequest struct {
	// Chat the reply is addressed to.
	// example: 424242
	ChatID int64 `json:"chat_id" example:"424242"`
	// Raw message text, including any leading /command.
	// example: /site https://example.com
	Text string `json:"text" example:"/site https://example.com"`
	// Optional attached document contents (treated as code to analyze).
	Document string `json:"document,omitempty"`
	// Optional document file name.
	// example: main.go
	DocumentName string `json:"document_name,omitempty" example:"main.go"`
}

// UpdateResponse is returned once the message has been handled. For queued jobs
// the reply is delivered asynchronously through the chat transport.
type UpdateResponse struct {
	// Outcome of routing: "queued", "replied" or "rejected".
	// example: queued
	Outcome string `json:"outcome" example:"queued"`
	// Job identifier when Outcome is "queued".
	// example: 6f1c1d2e-4b7a-4f57-9c0e-1f3a2b4c5d6e
	JobID string `json:"job_id,omitempty" example:"6f1c1d2e-4b7a-4f57-9c0e-1f3a2b4c5d6e"`
	// 1-based queue position at admission.
	// example: 2
	Position int `json:"position,omitempty" example:"2"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// BackendStatus summarizes the supervised inference backend.
type BackendStatus struct {
	// Lifecycle state: starting, pulling_model, ready, degraded, crashed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Model currently serving inference.
	// example: qwen2.5-coder:7b
	ActiveModel string `json:"active_model,omitempty" example:"qwen2.5-coder:7b"`
	// True when the active model is not the configured primary.
	// example: true
	Fallback bool `json:"fallback" example:"true"`
	// Backend address.
	// example: http://127.0.0.1:11434
	URL string `json:"url" example:"http://127.0.0.1:11434"`
	// Process ID of the managed backend (0 when externally managed).
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Total restarts since process start.
	// example: 1
	Restarts uint64 `json:"restarts" example:"1"`
	// Crashes since the backend last stayed up long enough to count as stable.
	// example: 0
	ConsecutiveCrashes int `json:"consecutive_crashes" example:"0"`
	// Last error observed by the supervisor.
	LastError string `json:"last_error,omitempty"`
	// Seconds since the backend last became ready.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// QueueStatus summarizes the job scheduler.
type QueueStatus struct {
	// Jobs waiting for their turn.
	// example: 3
	Depth int `json:"depth" example:"3"`
	// Jobs currently running (0 or 1).
	// example: 1
	Running int `json:"running" example:"1"`
	// Admission limit.
	// example: 64
	MaxDepth int `json:"max_depth" example:"64"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Backend BackendStatus `json:"backend"`
	Queue   QueueStatus   `json:"queue"`
	// Terminal job counts from the ledger keyed by status.
	// example: {"succeeded":10,"failed":1}
	Jobs map[string]int `json:"jobs,omitempty"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// Reply is a message delivered to a chat through the loopback transport.
type Reply struct {
	// example: 424242
	ChatID int64 `json:"chat_id" example:"424242"`
	// example: Queue: 0 waiting, 0 running
	Text string `json:"text" example:"Queue: 0 waiting, 0 running"`
}

// RepliesResponse is returned by GET /v1/replies/{chat_id}.
type RepliesResponse struct {
	Replies []Reply `json:"replies"`
}
