package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tasks-api/internal/model"
)

type errorBody struct {
	Code    model.Kind `json:"code"`
	Message string     `json:"message"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error errorBody `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.WithError(err).Warn("failed to write response")
	}
}

// writeError renders err. Failures of the task routes are client errors
// whatever their cause; only a rejected token maps to 401.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var me *model.Error
	if !errors.As(err, &me) {
		me = model.NewError(model.KindUnknown, "api", err)
	}

	status := http.StatusBadRequest
	if me.Kind == model.KindUnauthorized {
		status = http.StatusUnauthorized
	}
	a.writeJSON(w, status, ErrorResponse{Error: errorBody{Code: me.Kind, Message: me.Message()}})
}
