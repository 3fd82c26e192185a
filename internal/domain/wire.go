package domain

// WebSocket message types from client.
const (
	MsgTypeRegister = "register_user"
	MsgTypeSend     = "send_message"
	MsgTypePing     = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeNewMessage = "new_message"
	MsgTypeError      = "error"
	MsgTypePong       = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type RegisterMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type SendMessage struct {
	Type     string `json:"type"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Body     string `json:"message"`
}

// Server -> Client messages

// NewMessageEvent is pushed only to the connection currently registered
// for the receiver.
type NewMessageEvent struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
	Body   string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
