package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"vision-assist/meta"
	"vision-assist/service/query"
)

const (
	noQueryMessage     = "No query provided."
	defaultHistorySize = 10
	maxHistorySize     = 100

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

type Server struct {
	assistant *Assistant
	model     string
	logger    *slog.Logger
}

func NewServer(assistant *Assistant, model string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		assistant: assistant,
		model:     model,
		logger:    logger,
	}
}

// Router builds the gin engine with every route and middleware installed.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.CustomRecovery(s.recoveryHandler))
	router.Use(cors.Default()) // Allow all origins

	router.GET("/", s.indexHandler)
	router.POST("/api/ask", s.askHandler)
	router.GET("/api/history", s.historyHandler)

	return router
}

// Run listens on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("unexpected error in http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) recoveryHandler(ctx *gin.Context, recovered any) {
	s.logger.ErrorContext(ctx, "panic while handling request",
		slog.String("path", ctx.Request.URL.Path),
		slog.Any("error", recovered))
	ctx.AbortWithStatusJSON(http.StatusInternalServerError, query.ErrorBody{
		Error: fmt.Sprintf("Internal server error: %v", recovered),
	})
}

func (s *Server) indexHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"api_name":  meta.APIName,
		"endpoint":  "/api/ask",
		"usage":     "POST a JSON payload with {'query': 'Your question here'}",
		"model":     s.model,
		"grounding": "google_search",
	})
}

func (s *Server) askHandler(ctx *gin.Context) {
	var payload query.RequestPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		s.logger.ErrorContext(ctx, "failed to bind request to expected object", slog.Any("error", err))
		ctx.JSON(http.StatusBadRequest, query.ErrorBody{Error: "Invalid request payload: " + err.Error()})
		return
	}

	response, err := s.assistant.Answer(ctx.Request.Context(), payload.Query)
	if errors.Is(err, ErrEmptyQuery) {
		ctx.JSON(http.StatusBadRequest, query.ErrorBody{Error: noQueryMessage})
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to answer query", slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, query.ErrorBody{Error: fmt.Sprintf("Internal server error: %v", err)})
		return
	}

	ctx.JSON(http.StatusOK, response)
}

func (s *Server) historyHandler(ctx *gin.Context) {
	if !s.assistant.HistoryEnabled() {
		ctx.JSON(http.StatusNotFound, query.ErrorBody{Error: "history is not enabled"})
		return
	}

	size := defaultHistorySize
	if raw := strings.TrimSpace(ctx.Query("size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistorySize {
			ctx.JSON(http.StatusBadRequest, query.ErrorBody{
				Error: fmt.Sprintf("size must be an integer between 1 and %d", maxHistorySize),
			})
			return
		}
		size = parsed
	}

	exchanges, err := s.assistant.History(ctx.Request.Context(), size)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load history", slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, query.ErrorBody{Error: "something went wrong talking to the archive"})
		return
	}

	ctx.JSON(http.StatusOK, query.HistoryBody{Exchanges: exchanges})
}
