package web

import (
	"context"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push/status"
	"go.uber.org/zap"
)

type ctxKey struct{}

func datasetFromContext(ctx context.Context) model.DatasetRef {
	ref, _ := ctx.Value(ctxKey{}).(model.DatasetRef)
	return ref
}

// authorize resolves the dataset of a push route and checks access to it
func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref, err := model.NewDatasetRef(chi.URLParam(r, "org"), chi.URLParam(r, "ds"))
		if err != nil {
			s.writeError(w, r, status.ErrBadRequest.Wrap(err))
			return
		}
		if err := s.auth.Authorize(r, ref); err != nil {
			if !errors.Is(err, status.ErrUnauthorized) {
				err = status.ErrUnauthorized.Wrap(err)
			}
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ref)))
	})
}

// logRequests logs every request with zap
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.l.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", m.Duration),
		)
	})
}
