// Package server exposes the support router over HTTP for multi-session use.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
)

type Config struct {
	Addr           string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"120s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"90s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"65536"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`
	// PublicURL is the externally visible base URL, used to check the
	// subject of signed escalation callbacks behind a proxy.
	PublicURL string `envconfig:"PUBLIC_URL"`
}

// Conversations is the part of the orchestrator the HTTP surface drives.
type Conversations interface {
	HandleMessage(ctx context.Context, sessionID string, text string) (contractx.TurnReply, error)
	Session(ctx context.Context, sessionID string) (*statex.SessionState, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// SignatureVerifier checks signed webhook deliveries.
type SignatureVerifier interface {
	Verify(signature string, body []byte, requestURL string) error
}

type Server struct {
	cfg        Config
	conv       Conversations
	verifier   SignatureVerifier
	newID      func() string
	router     chi.Router
	httpServer *http.Server
}

type Option func(*Server)

// WithCallbackVerifier enables the escalation callback endpoint.
func WithCallbackVerifier(v SignatureVerifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

func WithSessionIDGenerator(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func New(cfg Config, conv Conversations, opts ...Option) (*Server, error) {
	if conv == nil {
		return nil, errors.New("server: conversations are required")
	}
	s := &Server{
		cfg:   cfg,
		conv:  conv,
		newID: newSessionID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/messages", s.handlePostMessage)
		})
		if s.verifier != nil {
			r.Post("/escalations/callback", s.handleEscalationCallback)
		}
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Shutdown is called. It returns nil after a graceful
// shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(started)).
			Msg("http request")
	})
}
