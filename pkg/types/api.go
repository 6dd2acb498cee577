package types

// QueryRequest asks the inference binary for a completion.
// Optional sampling fields are pointers: only fields that are set become
// command-line flags.
type QueryRequest struct {
	// Model size class; defaults to 7B when empty.
	// example: 7B
	Model string `json:"model,omitempty" example:"7B"`
	// Prompt text.
	// example: The capital of France is
	Prompt string `json:"prompt" example:"The capital of France is"`
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
	// example: 8
	Threads *int `json:"threads,omitempty" example:"8"`
	// Number of tokens to predict.
	// example: 128
	NPredict *int `json:"n_predict,omitempty" example:"128"`
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// example: 0.8
	Temp *float64 `json:"temp,omitempty" example:"0.8"`
	// example: 8
	BatchSize *int `json:"batch_size,omitempty" example:"8"`
	// example: 64
	RepeatLastN *int `json:"repeat_last_n,omitempty" example:"64"`
	// example: 1.3
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.3"`
	// Full forwards the raw process output, banner and trailer included.
	Full bool `json:"full,omitempty"`
	// SkipEnd suppresses the end-marker completion signal; completion is
	// then signaled when the process exits.
	SkipEnd bool `json:"skip_end,omitempty"`
}

// QueryChunk is one NDJSON line of a /query response.
type QueryChunk struct {
	Text string `json:"text,omitempty"`
	Done bool   `json:"done,omitempty"`
}

// InstallRequest starts an install run.
type InstallRequest struct {
	// example: ["7B","13B"]
	Models []string `json:"models" example:"7B,13B"`
}

// InstallResponse acknowledges an accepted install run.
type InstallResponse struct {
	// example: 1b4e28ba-2fa1-11d2-883f-0016d3cca427
	RunID string `json:"run_id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
}

// InstalledResponse is returned by GET /installed.
type InstalledResponse struct {
	// example: ["7B"]
	Models []string `json:"models"`
}

// ModelsResponse is returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ExecRequest runs an arbitrary shell command line in the pseudo-terminal.
type ExecRequest struct {
	// example: ls models
	Command string `json:"command" example:"ls models"`
	// Working directory; defaults to the home directory.
	Cwd string `json:"cwd,omitempty"`
}

// ExecResponse reports whether the command exited 0.
type ExecResponse struct {
	Success bool `json:"success"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Home    string `json:"home"`
	Running bool   `json:"running"`
	RunID   string `json:"run_id,omitempty"`
	// Command of the active process, if any.
	Active string `json:"active,omitempty"`
	PID    int    `json:"pid,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: unknown model: "8B"
	Error string `json:"error" example:"unknown model: \"8B\""`
	// example: 400
	Code int `json:"code" example:"400"`
}
