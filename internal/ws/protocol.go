package ws

import (
	"encoding/json"

	"roundtable/internal/session"
)

const (
	ProtocolVersion = "1"

	TypeResponse = "response"

	maxRequestIDLength = 64
)

// Request is one client message. ID is chosen by the client and echoed on the
// response.
type Request struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Response struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ID              string         `json:"id"`
	OK              bool           `json:"ok"`
	Data            any            `json:"data,omitempty"`
	Error           *session.Error `json:"error,omitempty"`
}

// Notifications go out as session.Notification values; their type is never
// "response", which is how clients tell the two apart.

func okResponse(id string, data any) Response {
	return Response{Type: TypeResponse, ProtocolVersion: ProtocolVersion, ID: id, OK: true, Data: data}
}

func errorResponse(id string, e *session.Error) Response {
	return Response{Type: TypeResponse, ProtocolVersion: ProtocolVersion, ID: id, Error: e}
}

func validRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestIDLength
}
