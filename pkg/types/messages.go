// Package types holds the HTTP request and response bodies of the veto API.
package types

// POST /sessions
type CreateSessionRequest struct {
	Format string   `json:"format"`         // "bo1" | "bo3" | "bo5" (md1/md3/md5 accepted)
	Pool   []string `json:"pool,omitempty"` // defaults to the configured pool
}

type SessionLinks struct {
	Host      string `json:"host"`
	TeamA     string `json:"team_a"`
	TeamB     string `json:"team_b"`
	Spectator string `json:"spectator"`
}

type CreateSessionResponse struct {
	ID      string       `json:"id"`
	Format  string       `json:"format"`
	Pool    []string     `json:"pool"`
	Version int          `json:"version"`
	Links   SessionLinks `json:"links"`
}

// POST /sessions/{id}/actions
type ActionRequest struct {
	Team            string `json:"team"`   // "teamA" | "teamB"
	Map             string `json:"map"`
	Action          string `json:"action"` // "veto" | "pick"
	ExpectedVersion *int   `json:"expected_version,omitempty"`
}

// GET /maps
type MapsResponse struct {
	Maps        []string `json:"maps"`
	DefaultPool []string `json:"default_pool"`
}

// Error body for every non-2xx response.
//
//	code: "bad_request" | "invalid_config" | "not_found" | "already_finished" |
//	      "not_your_turn" | "wrong_action" | "map_unavailable" |
//	      "stale_version" | "version_conflict" | "internal"
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
