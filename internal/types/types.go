package types

import "github.com/DoyleJ11/map-veto-backend/internal/engine"

// ClientMessage is sent by a team over the websocket.
type ClientMessage struct {
	Type            string `json:"type"` // "Veto" | "Pick"
	Map             string `json:"map,omitempty"`
	ExpectedVersion *int   `json:"expected_version,omitempty"`
}

type ServerMessage struct {
	Type    string       `json:"type"` // "StateSnapshot" | "Error"
	Version int          `json:"version,omitempty"`
	View    *engine.View `json:"view,omitempty"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error,omitempty"`
}
