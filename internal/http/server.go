// Package http provides the HTTP API for copyvara.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/logging"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
	"github.com/fyrsmithlabs/copyvara/internal/workspace"
)

// maxBodyBytes bounds request bodies; captured documents can be long.
const maxBodyBytes = "4M"

// Server provides HTTP endpoints for a workspace.
type Server struct {
	echo    *echo.Echo
	ws      *workspace.Workspace
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server.
func NewServer(ws *workspace.Workspace, logger *zap.Logger, cfg *Config) (*Server, error) {
	if ws == nil {
		return nil, fmt.Errorf("workspace cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9292,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		ws:      ws,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return err
		}
	})

	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(s.metrics.MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// Echo exposes the router so callers can mount extra handlers.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/documents", s.handleListDocuments)
	v1.POST("/documents", s.handleAddDocument)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.GET("/memory", s.handleMemory)
	v1.POST("/ask", s.handleAsk)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.GET("/sessions", s.handleSessions)
	v1.GET("/questions", s.handleQuestions)
	v1.GET("/links", s.handleLinks)
	v1.POST("/candidates/:id/accept", s.handleAcceptCandidate)
	v1.POST("/candidates/:id/reject", s.handleRejectCandidate)
	v1.PATCH("/edges/:id", s.handleUpdateEdge)
	v1.DELETE("/edges/:id", s.handleDeleteEdge)
	v1.POST("/workspace/reset", s.handleReset)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.ws.Snapshot()
	status := "ok"
	if snap.LastError != "" {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status:       status,
		Version:      s.config.Version,
		EvidenceMode: snap.EvidenceMode,
		LastError:    snap.LastError,
		Counts:       CountSnapshot(snap),
	})
}

func (s *Server) handleListDocuments(c echo.Context) error {
	return c.JSON(http.StatusOK, DocumentsResponse{Documents: s.ws.Documents()})
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.ws.Document(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(c, "get document", err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleAddDocument(c echo.Context) error {
	var req AddDocumentRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid add document request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	doc, err := s.ws.AddDocument(c.Request().Context(), req.RawText)
	if err != nil {
		return s.httpError(c, "add document", err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleMemory(c echo.Context) error {
	return c.JSON(http.StatusOK, MemoryResponse{Items: s.ws.MemoryItems(c.QueryParam("document_id"))})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.ws.Ask(c.Request().Context(), req.Question)
	if err != nil {
		return s.httpError(c, "ask", err)
	}
	return c.JSON(http.StatusOK, AskResponse{
		Session:   session,
		LastError: s.ws.LastError(),
	})
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid retrieve request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Limit < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "limit cannot be negative")
	}
	return c.JSON(http.StatusOK, RetrieveResponse{Results: s.ws.Retrieve(req.Question, req.Limit)})
}

func (s *Server) handleSessions(c echo.Context) error {
	sessions := s.ws.Sessions()
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		if n < len(sessions) {
			sessions = sessions[:n]
		}
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: sessions})
}

func (s *Server) handleQuestions(c echo.Context) error {
	return c.JSON(http.StatusOK, QuestionsResponse{Questions: s.ws.Questions()})
}

func (s *Server) handleLinks(c echo.Context) error {
	return c.JSON(http.StatusOK, LinksResponse{
		Candidates: s.ws.Candidates(),
		Edges:      s.ws.Edges(),
	})
}

func (s *Server) handleAcceptCandidate(c echo.Context) error {
	if err := s.ws.AcceptCandidate(c.Request().Context(), c.Param("id")); err != nil {
		return s.httpError(c, "accept candidate", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRejectCandidate(c echo.Context) error {
	if err := s.ws.RejectCandidate(c.Request().Context(), c.Param("id")); err != nil {
		return s.httpError(c, "reject candidate", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUpdateEdge(c echo.Context) error {
	var req UpdateEdgeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid update edge request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	edge, err := s.ws.UpdateEdge(c.Request().Context(), c.Param("id"), req.Relation)
	if err != nil {
		return s.httpError(c, "update edge", err)
	}
	return c.JSON(http.StatusOK, edge)
}

func (s *Server) handleDeleteEdge(c echo.Context) error {
	if err := s.ws.DeleteEdge(c.Request().Context(), c.Param("id")); err != nil {
		return s.httpError(c, "delete edge", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.ws.Reset(c.Request().Context()); err != nil {
		return s.httpError(c, "reset", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// httpError maps workspace and storage errors onto status codes.
func (s *Server) httpError(c echo.Context, op string, err error) error {
	var verr *workspace.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
	case errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, workspace.ErrUpstreamGeneration), errors.Is(err, workspace.ErrUpstreamPersistence):
		s.logger.Warn("upstream failure",
			zap.String("op", op),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
