// Package admin serves the monitoring dashboard: a JSON API, a WebSocket feed
// and the embedded HTML page.
package admin

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"netmon-sim/internal/aggregator"
	"netmon-sim/internal/telemetry"
)

//go:embed templates/index.html
var content embed.FS

const shutdownTimeout = 5 * time.Second

// Fleet is the simulator surface the API needs.
type Fleet interface {
	ListDevices() []telemetry.Device
	ForceStatus(id string, status telemetry.Status) bool
}

// Store is the aggregator surface the API needs.
type Store interface {
	GetHistory(id string) ([]telemetry.HistorySample, error)
	GetLogs(limit int) []telemetry.LogEntry
	AppendLog(level telemetry.Level, message, deviceID string) telemetry.LogEntry
}

// Server exposes fleet state over HTTP and pushes live events to WebSocket
// clients. Register it as a simulator observer and as a log subscriber.
type Server struct {
	fleet     Fleet
	store     Store
	clusterID string
	router    *gin.Engine
	hub       *hub
	log       *slog.Logger
	now       func() time.Time
}

// NewServer wires the routes.
func NewServer(clusterID string, fleet Fleet, store Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		fleet:     fleet,
		store:     store,
		clusterID: clusterID,
		router:    gin.New(),
		hub:       newHub(log),
		log:       log,
		now:       time.Now,
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s.router.SetHTMLTemplate(tpl)
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/ws", s.handleWS)

	api := s.router.Group("/api")
	{
		api.GET("/devices", s.handleDevices)
		api.GET("/history/:deviceId", s.handleHistory)
		api.GET("/logs", s.handleLogs)
		api.GET("/summary", s.handleSummary)
		api.POST("/force/:deviceId/:status", s.handleForce)
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
	}

	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.log.Info("admin server stopped")
	return nil
}

// respondError sends a structured JSON error response.
func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": gin.H{
			"message": message,
			"status":  code,
		},
	})
	c.Abort()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"ClusterID": s.clusterID})
}

func (s *Server) devicesPayload() gin.H {
	return gin.H{"devices": s.fleet.ListDevices(), "ts": s.now().UTC()}
}

func (s *Server) handleDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.devicesPayload())
}

func (s *Server) handleHistory(c *gin.Context) {
	id := c.Param("deviceId")
	h, err := s.store.GetHistory(id)
	if err != nil {
		respondError(c, http.StatusNotFound, "device not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviceId": id, "history": h})
}

// handleLogs serves at most aggregator.DefaultLogLimit entries.
func (s *Server) handleLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > aggregator.DefaultLogLimit {
		limit = aggregator.DefaultLogLimit
	}
	c.JSON(http.StatusOK, gin.H{"logs": s.store.GetLogs(limit)})
}

func (s *Server) handleSummary(c *gin.Context) {
	snap := telemetry.Snapshot{Devices: s.fleet.ListDevices(), Timestamp: s.now().UTC()}
	c.JSON(http.StatusOK, snap.Summary())
}

func (s *Server) handleForce(c *gin.Context) {
	id := c.Param("deviceId")
	status, err := telemetry.ParseStatus(c.Param("status"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad status")
		return
	}
	if !s.fleet.ForceStatus(id, status) {
		respondError(c, http.StatusNotFound, "device not found")
		return
	}
	s.store.AppendLog(telemetry.LevelInfo, fmt.Sprintf("%s forced %s by operator", id, status), id)
	s.log.Info("device status forced", "device_id", id, "status", status)
	c.JSON(http.StatusOK, gin.H{"ok": true, "deviceId": id, "status": status})
}

func (s *Server) handleWS(c *gin.Context) {
	now := s.now().UTC()
	greeting := []Envelope{
		{Type: "snapshot", TS: now, Data: s.devicesPayload()},
		{Type: "logs", TS: now, Data: gin.H{"logs": s.store.GetLogs(aggregator.DefaultLogLimit)}},
	}
	s.hub.serve(c.Writer, c.Request, greeting, s.answer)
}

// answer handles client requests; only getHistory is understood.
func (s *Server) answer(req request) (Envelope, bool) {
	if req.Type != "getHistory" {
		return Envelope{}, false
	}
	h, err := s.store.GetHistory(req.DeviceID)
	if err != nil {
		h = []telemetry.HistorySample{}
	}
	return Envelope{
		Type: "history",
		TS:   s.now().UTC(),
		Data: gin.H{"deviceId": req.DeviceID, "history": h},
	}, true
}

// OnTransition pushes a statusChange frame.
func (s *Server) OnTransition(ev telemetry.TransitionEvent) {
	s.hub.broadcast(Envelope{Type: "statusChange", TS: ev.Timestamp, Data: ev})
}

// OnSnapshot pushes a deviceSnapshot frame.
func (s *Server) OnSnapshot(snap telemetry.Snapshot) {
	s.hub.broadcast(Envelope{Type: "deviceSnapshot", TS: snap.Timestamp, Data: snap})
}

// OnLog pushes a log frame.
func (s *Server) OnLog(e telemetry.LogEntry) {
	s.hub.broadcast(Envelope{Type: "log", TS: e.Timestamp, Data: e})
}

// Clients reports connected WebSocket clients.
func (s *Server) Clients() int { return s.hub.count() }

// Dropped reports frames skipped because a client was too slow.
func (s *Server) Dropped() uint64 { return s.hub.dropped.Load() }
