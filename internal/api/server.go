// Package api exposes the analyzer's HTTP/JSON interface: graph snapshots,
// per-node statistics, the computing-state snapshot, driver status, live
// streams, health, and prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonoptix/photoacoustic-go/internal/action"
	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
	"github.com/sonoptix/photoacoustic-go/internal/observability"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
	"github.com/sonoptix/photoacoustic-go/internal/processing/nodes"
)

// Server is the HTTP front end. It only ever reads snapshots; it never
// touches the live graph.
type Server struct {
	echo      *echo.Echo
	listen    string
	consumer  *processing.Consumer
	state     *computing.SharedState
	dispatch  *action.Dispatcher
	streaming *nodes.StreamingRegistry
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewServer wires the routes.
func NewServer(listen string, consumer *processing.Consumer, state *computing.SharedState, dispatch *action.Dispatcher, streaming *nodes.StreamingRegistry, metrics *observability.Metrics) *Server {
	logger := logging.ForService("api")
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		listen:    listen,
		consumer:  consumer,
		state:     state,
		dispatch:  dispatch,
		streaming: streaming,
		metrics:   metrics,
		logger:    logger.With("component", "server"),
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/api/graph", s.handleGraph)
	e.GET("/api/graph/statistics", s.handleGraphStatistics)
	e.GET("/api/computing", s.handleComputing)
	e.GET("/api/drivers", s.handleDrivers)
	e.GET("/api/stream/:id", s.handleStream)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.listen); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logger.Info("api server started", "listen", s.listen)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c echo.Context) error {
	frames, lagged, _, _ := s.consumer.Stats()
	status := map[string]any{
		"status":        "ok",
		"frames":        frames,
		"frames_lagged": lagged,
	}
	if lastErr := s.consumer.LastError(); lastErr != "" {
		status["last_error"] = lastErr
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleGraph(c echo.Context) error {
	return c.JSON(http.StatusOK, s.consumer.Snapshot())
}

func (s *Server) handleGraphStatistics(c echo.Context) error {
	snapshot := s.consumer.Snapshot()
	return c.JSON(http.StatusOK, snapshot.Summary)
}

func (s *Server) handleComputing(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.GetSnapshot())
}

func (s *Server) handleDrivers(c echo.Context) error {
	if s.dispatch == nil {
		return c.JSON(http.StatusOK, map[string]any{})
	}
	return c.JSON(http.StatusOK, s.dispatch.Statuses())
}

// handleStream relays a streaming node's output as server-sent events.
func (s *Server) handleStream(c echo.Context) error {
	if s.streaming == nil {
		return echo.NewHTTPError(http.StatusNotFound, "streaming disabled")
	}
	streamID := c.Param("id")
	ch, cancel := s.streaming.Subscribe(streamID)
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-ch:
			payload, err := json.Marshal(map[string]any{
				"kind":         string(data.Kind),
				"frame_number": data.FrameNumber,
				"sample_rate":  data.SampleRate,
				"samples":      data.PrimarySamples(),
			})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
