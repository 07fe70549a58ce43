// Package server exposes the key pool over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/meter"
)

// RequestBodyLimit caps inbound request bodies.
const RequestBodyLimit = 50 << 20

// Server is the HTTP front of the proxy.
type Server struct {
	engine       *gin.Engine
	dispatcher   *keyrelay.Dispatcher
	token        string
	defaultModel string
	meter        keyrelay.Meter
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMeter sets the meter that receives stream events.
func WithMeter(m keyrelay.Meter) Option {
	return func(s *Server) { s.meter = m }
}

// WithDefaultModel sets the model used when a chat request names none.
func WithDefaultModel(model string) Option {
	return func(s *Server) { s.defaultModel = model }
}

// New creates a Server that authenticates clients with token and dispatches through d.
func New(d *keyrelay.Dispatcher, token string, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:       gin.New(),
		dispatcher:   d,
		token:        token,
		defaultModel: keyrelay.DefaultModel,
		meter:        meter.Discard,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	_ = s.engine.SetTrustedProxies(nil)

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestID())
	s.engine.Use(requestLogger(s.logger))
	s.engine.Use(bodyLimit(RequestBodyLimit))

	s.engine.GET("/health", s.health)

	authed := s.engine.Group("/", placeholderAuth(s.token))
	authed.GET("/v1/usage", s.usage)
	authed.GET("/v1/models", s.models)
	authed.POST("/v1/chat/completions", s.chatCompletions)

	// Everything else is native Gemini traffic: /v1beta, /v1, /upload and so on.
	s.engine.NoRoute(placeholderAuth(s.token), s.passthrough)
}
