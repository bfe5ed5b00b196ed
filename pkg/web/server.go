// Package web exposes push sessions over HTTP.
package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultMaxUploadSize is the default limit on the size of uploaded files
	DefaultMaxUploadSize = int64(units.GiB)

	// DefaultShutdownTimeout is the grace period left to requests in flight on shutdown
	DefaultShutdownTimeout = 10 * time.Second

	// limit on the size of the form fields sent along with an uploaded file
	maxFieldSize = 64 * units.KiB
)

// Pusher runs push sessions
type Pusher interface {
	Init(ctx context.Context, ref model.DatasetRef, stamp []byte, checksum string) (push.InitResult, error)
	StageMetadata(ctx context.Context, token string, doc []byte) error
	StageFile(ctx context.Context, token, relPath string, r io.Reader) error
	Commit(ctx context.Context, token string) (push.CommitResult, error)
	DatasetOf(token string) (model.DatasetRef, error)
}

var _ Pusher = &push.Orchestrator{}

// Option configures the server
type Option func(*Server)

// WithLogger sets a logger. The default is a no-op logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.l = l
		}
	}
}

// WithAuthorizer sets the access control of push requests. The default allows all requests
func WithAuthorizer(a Authorizer) Option {
	return func(s *Server) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithMaxUploadSize limits the size of request bodies
func WithMaxUploadSize(size int64) Option {
	return func(s *Server) {
		if size > 0 {
			s.maxUpload = size
		}
	}
}

// WithShutdownTimeout sets the grace period left to requests in flight on shutdown
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server handles push requests
type Server struct {
	pusher          Pusher
	auth            Authorizer
	l               *zap.Logger
	maxUpload       int64
	shutdownTimeout time.Duration
}

// NewServer builds a HTTP server for push sessions
func NewServer(pusher Pusher, opts ...Option) *Server {
	s := &Server{
		pusher:          pusher,
		auth:            AllowAll(),
		l:               zap.NewNop(),
		maxUpload:       DefaultMaxUploadSize,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// InitRouter builds the routes of the server
func InitRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.HandleHealth())

	r.Route("/orgs/{org}/ds/{ds}/push", func(r chi.Router) {
		r.Use(s.authorize)
		r.Post("/init", s.HandleInit())
		r.Post("/meta", s.HandleMeta())
		r.Post("/upload", s.HandleUpload())
		r.Post("/commit", s.HandleCommit())
	})
	return r
}

// ListenAndServe serves requests on some address, until the context is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           InitRouter(s),
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.l.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-done
}
