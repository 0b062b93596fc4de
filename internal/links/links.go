// Package links issues short session ids and the role-scoped URLs handed to
// each team and to spectators.
package links

import (
	"fmt"
	"net/url"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Issuer struct {
	base   *url.URL
	length int
}

type Links struct {
	Host      string `json:"host"`
	TeamA     string `json:"team_a"`
	TeamB     string `json:"team_b"`
	Spectator string `json:"spectator"`
}

func NewIssuer(baseURL string, length int) (*Issuer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if length <= 0 {
		return nil, fmt.Errorf("id length must be positive, got %d", length)
	}
	return &Issuer{base: u, length: length}, nil
}

// NewID returns a random id over A-Z0-9. Callers check it for collisions.
func (i *Issuer) NewID() (string, error) {
	return gonanoid.Generate(alphabet, i.length)
}

func (i *Issuer) Links(sessionID string) Links {
	return Links{
		Host:      i.URL(sessionID, "host"),
		TeamA:     i.URL(sessionID, "teamA"),
		TeamB:     i.URL(sessionID, "teamB"),
		Spectator: i.URL(sessionID, "spectator"),
	}
}

// URL builds base?session=ID&role=ROLE, keeping any query already on base.
func (i *Issuer) URL(sessionID, role string) string {
	u := *i.base
	q := u.Query()
	q.Set("session", sessionID)
	q.Set("role", role)
	u.RawQuery = q.Encode()
	return u.String()
}
