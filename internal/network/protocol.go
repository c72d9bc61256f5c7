package network

import "encoding/json"

// Message types - Client → Server
const (
	MsgTypeEnterStorage = "enter_storage"
	MsgTypeExitStorage  = "exit_storage"
	MsgTypeSnapshot     = "snapshot"
	MsgTypePing         = "ping"
)

// Message types - Server → Client
const (
	MsgTypeWelcome          = "welcome"
	MsgTypeTransferStarted  = "transfer_started"
	MsgTypeTransferProgress = "transfer_progress"
	MsgTypeTransferFinished = "transfer_finished"
	MsgTypeBuildingStatus   = "building_status"
	MsgTypeSnapshotResult   = "snapshot"
	MsgTypeError            = "error"
	MsgTypePong             = "pong"
)

// Error codes
const (
	ErrCodeInvalidMessage  = "invalid_message"
	ErrCodeUnknownType     = "unknown_message_type"
	ErrCodeInvalidPayload  = "invalid_payload"
	ErrCodeUnknownBuilding = "unknown_building"
	ErrCodeBusy            = "busy"
	ErrCodeReadOnly        = "read_only"
)

// Storage roles on the wire
const (
	RoleInput  = "input"
	RoleOutput = "output"
)

// ClientMessage represents any message from client to server
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// --- Client Message Payloads ---

// EnterStoragePayload moves the player into a building's storage zone
type EnterStoragePayload struct {
	BuildingID int    `json:"building_id"`
	Role       string `json:"role"` // "input" or "output"
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	ObserverID    string        `json:"observer_id"`
	Username      string        `json:"username"`
	SessionID     string        `json:"session_id"`
	SessionStatus SessionStatus `json:"session_status"`
}

// SessionStatus represents the current session state
type SessionStatus struct {
	State         string  `json:"state"`
	ObserverCount int     `json:"observer_count"`
	TickRate      int     `json:"tick_rate"`
	ServerTick    uint64  `json:"server_tick"`
	SimSeconds    float64 `json:"sim_seconds"`
	Uptime        int64   `json:"uptime"`
}

// TransferStartedPayload announces a running transfer
type TransferStartedPayload struct {
	ID              int64   `json:"id"`
	Resource        string  `json:"resource"`
	Source          string  `json:"source"`
	Destination     string  `json:"destination"`
	DurationSeconds float64 `json:"duration_seconds"`
	Origin          string  `json:"origin"`
}

// TransferProgressPayload reports a running transfer's progress (0-1)
type TransferProgressPayload struct {
	ID       int64   `json:"id"`
	Progress float64 `json:"progress"`
}

// TransferFinishedPayload reports a terminal transfer status
type TransferFinishedPayload struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// BuildingStatusPayload reports a building status change
type BuildingStatusPayload struct {
	BuildingID int    `json:"building_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason,omitempty"`
	Text       string `json:"text"`
}

// PongPayload answers a ping
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
