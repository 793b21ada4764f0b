package model

// WebSocket message types
type WSMessageType string

const (
	WSMessageTypeProgress WSMessageType = "progress"
	WSMessageTypeComplete WSMessageType = "complete"
	WSMessageTypeError    WSMessageType = "error"
	WSMessageTypePing     WSMessageType = "ping"
	WSMessageTypePong     WSMessageType = "pong"
)

// WSMessage is the envelope for client-originated messages
type WSMessage struct {
	Type WSMessageType `json:"type"`
}

// WSProgressMessage is pushed while a download job advances
type WSProgressMessage struct {
	Type        WSMessageType `json:"type"`
	JobID       string        `json:"jobId"`
	Progress    int           `json:"progress"`
	Status      JobStatus     `json:"status"`
	Description string        `json:"description,omitempty"`
}

// WSCompleteMessage is pushed once with the final artifact details
type WSCompleteMessage struct {
	Type   WSMessageType `json:"type"`
	JobID  string        `json:"jobId"`
	Result interface{}   `json:"result"`
}

// WSError describes a job failure
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSErrorMessage is pushed when a job fails
type WSErrorMessage struct {
	Type  WSMessageType `json:"type"`
	JobID string        `json:"jobId"`
	Error WSError       `json:"error"`
}
