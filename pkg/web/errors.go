package web

import (
	"net/http"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/push/status"
	"go.uber.org/zap"
)

// ErrorResponse is the body of failed requests
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  status.Kind `json:"kind"`
	Paths []string    `json:"paths,omitempty"`
}

// StatusCode maps an error kind to a HTTP status code.
//
// Errors the client may correct are all reported as bad requests: the kind tells them apart.
func StatusCode(kind status.Kind) int {
	switch kind {
	case status.KindUnauthorized:
		return http.StatusUnauthorized
	case status.KindPushNotAllowed:
		return http.StatusForbidden
	case status.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = status.ErrBadRequest.WrapMessage("request body exceeds %d bytes", tooLarge.Limit)
	}

	kind := status.KindOf(err)
	resp := ErrorResponse{
		Error: err.Error(),
		Kind:  kind,
		Paths: status.PathsOf(err),
	}
	if kind == status.KindInternal {
		s.l.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		resp.Error = status.ErrInternal.Error()
	}
	s.writeJSON(w, StatusCode(kind), resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("could not write response", zap.Error(err))
	}
}
