package server

import (
	"encoding/json"
	"net/http"

	"github.com/trentonhq/trenton/internal/errors"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto an HTTP status and the error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := errors.ErrCodeInternal
	message := "internal error"

	var terr *errors.TrentonError
	if errors.As(err, &terr) {
		code = terr.Code
		message = terr.Message
		switch terr.Code {
		case errors.ErrCodeNotFound, errors.ErrCodeFileNotFound:
			status = http.StatusNotFound
		case errors.ErrCodeFolderConflict:
			status = http.StatusConflict
		case errors.ErrCodeInvalidInput, errors.ErrCodeUnsupportedFile:
			status = http.StatusBadRequest
		case errors.ErrCodeProviderTimeout, errors.ErrCodeProviderUnavailable, errors.ErrCodeNoEmbedding:
			status = http.StatusBadGateway
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err,
			"request_id", RequestID(r.Context()))
	}

	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, message string, cause error) {
	s.writeError(w, r, errors.ValidationError(message, cause))
}
