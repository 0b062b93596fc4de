package types

import (
	"errors"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
)

// Wire codes shared by the HTTP and websocket layers.
const (
	CodeBadRequest      = "bad_request"
	CodeInvalidConfig   = "invalid_config"
	CodeNotFound        = "not_found"
	CodeAlreadyFinished = "already_finished"
	CodeNotYourTurn     = "not_your_turn"
	CodeWrongAction     = "wrong_action"
	CodeMapUnavailable  = "map_unavailable"
	CodeStaleVersion    = "stale_version"
	CodeVersionConflict = "version_conflict"
	CodeInternal        = "internal"
)

var ErrBadRequest = errors.New("bad request")

var codes = []struct {
	err  error
	code string
}{
	{ErrBadRequest, CodeBadRequest},
	{engine.ErrConfig, CodeInvalidConfig},
	{store.ErrSessionNotFound, CodeNotFound},
	{engine.ErrAlreadyFinished, CodeAlreadyFinished},
	{engine.ErrNotYourTurn, CodeNotYourTurn},
	{engine.ErrStaleVersion, CodeStaleVersion},
	{store.ErrVersionConflict, CodeVersionConflict},
	{engine.ErrWrongActionKind, CodeWrongAction},
	{engine.ErrMapUnavailable, CodeMapUnavailable},
}

// ErrorCode returns the wire code for err, CodeInternal if unrecognised.
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
