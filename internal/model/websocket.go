package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage is pushed to subscribers after every configuration
// finishes.
type WSProgressMessage struct {
	Type               string    `json:"type"`
	JobID              string    `json:"jobId"`
	Status             JobStatus `json:"status"`
	TotalConfigs       int       `json:"totalConfigs"`
	CompletedConfigs   int       `json:"completedConfigs"`
	FailedConfigs      int       `json:"failedConfigs"`
	ProgressPercentage float64   `json:"progressPercentage"`
}

// WSCompleteMessage is pushed once the batch reaches a terminal state.
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Status JobStatus   `json:"status"`
	Result interface{} `json:"result,omitempty"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
