package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/map-veto-backend/internal/types"
	pub "github.com/DoyleJ11/map-veto-backend/pkg/types"
)

var errBadRequest = types.ErrBadRequest

var statusByCode = map[string]int{
	types.CodeBadRequest:      http.StatusBadRequest,
	types.CodeInvalidConfig:   http.StatusBadRequest,
	types.CodeNotFound:        http.StatusNotFound,
	types.CodeAlreadyFinished: http.StatusConflict,
	types.CodeNotYourTurn:     http.StatusConflict,
	types.CodeStaleVersion:    http.StatusConflict,
	types.CodeVersionConflict: http.StatusConflict,
	types.CodeWrongAction:     http.StatusUnprocessableEntity,
	types.CodeMapUnavailable:  http.StatusUnprocessableEntity,
}

func writeError(w http.ResponseWriter, err error) {
	code := types.ErrorCode(err)
	status, ok := statusByCode[code]
	msg := err.Error()
	if !ok {
		status = http.StatusInternalServerError
		msg = "internal error"
	}
	writeJSON(w, status, pub.ErrorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
