// Package web exposes the player state over HTTP: a small JSON API, a websocket
// push channel for now-playing updates, and the Prometheus metrics endpoint.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/primalradio/primalradio/internal/directory"
	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/metrics"
	"github.com/primalradio/primalradio/internal/ports"
)

// ScheduleSource is the read side of the schedule resolver.
type ScheduleSource interface {
	ports.ShowResolver
	Entries() []domain.ScheduleEntry
	Location() *time.Location
}

// PlaybackSource provides playback snapshots.
type PlaybackSource interface {
	GetState() domain.PlaybackState
}

// Deps are the components the web surface reads from.
type Deps struct {
	Directory *directory.Directory
	Schedule  ScheduleSource
	Metadata  ports.MetadataProvider
	Playback  PlaybackSource // optional
	Bus       ports.EventBus // optional, pushes playback changes
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
	Debug     bool
}

// Server is the HTTP surface.
type Server struct {
	logger *slog.Logger
	deps   Deps
	router *gin.Engine
	hub    *Hub

	http     *http.Server
	stopped  bool
	serverMu sync.Mutex

	unsubscribe func()
	subIDs      []domain.SubscriptionID
}

// NewServer builds the router and starts pushing metadata updates to websocket clients.
func NewServer(logger *slog.Logger, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if !deps.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		logger: logger.With(slog.String("component", "web")),
		deps:   deps,
		router: gin.New(),
	}
	s.hub = NewHub(logger, deps.Metrics, s.welcomePayload)

	s.router.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes()

	if deps.Metadata != nil {
		s.unsubscribe = deps.Metadata.Subscribe(func(domain.StationMetadata) {
			s.hub.Broadcast(MsgNowPlaying, s.nowPlayingView())
		})
	}
	if deps.Bus != nil && deps.Playback != nil {
		for _, t := range []domain.EventType{
			domain.EventStationChanged,
			domain.EventPlaybackStarted,
			domain.EventPlaybackPaused,
			domain.EventReconnectScheduled,
			domain.EventReconnectExhausted,
			domain.EventVolumeChanged,
			domain.EventMuteToggled,
		} {
			s.subIDs = append(s.subIDs, deps.Bus.Subscribe(t, s.onPlaybackEvent))
		}
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "primal-radio"})
	})

	api := s.router.Group("/api")
	{
		api.GET("/stations", s.listStations)
		api.GET("/stations/:id", s.getStation)
		api.GET("/nowplaying", s.getNowPlaying)
		api.GET("/schedule", s.getSchedule)
		api.GET("/schedule/current", s.getCurrentShow)
		api.GET("/playback", s.getPlayback)
	}

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.serverMu.Lock()
	if s.stopped {
		s.serverMu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.http = srv
	s.serverMu.Unlock()

	s.logger.Info("web surface listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops pushing updates, disconnects websocket clients and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.deps.Bus != nil {
		for _, id := range s.subIDs {
			s.deps.Bus.Unsubscribe(id)
		}
		s.subIDs = nil
	}

	s.hub.Close()

	s.serverMu.Lock()
	s.stopped = true
	srv := s.http
	s.serverMu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// stationView is a station with its external player links.
type stationView struct {
	domain.Station
	PlaylistLinks *domain.PlaylistLinks `json:"playlistLinks,omitempty"`
	Default       bool                  `json:"default"`
}

func (s *Server) stationView(st domain.Station) stationView {
	return stationView{
		Station:       st,
		PlaylistLinks: s.deps.Directory.ExternalPlaylistLinksFor(st),
		Default:       st.ID == s.deps.Directory.Default().ID,
	}
}

func (s *Server) listStations(c *gin.Context) {
	stations := s.deps.Directory.Stations()
	views := make([]stationView, 0, len(stations))
	for _, st := range stations {
		views = append(views, s.stationView(st))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getStation(c *gin.Context) {
	st, ok := s.deps.Directory.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrStationNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, s.stationView(st))
}

// nowPlayingResponse is the tagged now-playing record.
type nowPlayingResponse struct {
	Source   string                 `json:"source"`
	Reason   string                 `json:"reason,omitempty"`
	Metadata domain.StationMetadata `json:"metadata"`
}

func (s *Server) nowPlayingView() nowPlayingResponse {
	result := s.deps.Metadata.LastResult()
	return nowPlayingResponse{
		Source:   result.Source.String(),
		Reason:   string(result.Reason),
		Metadata: result.Metadata,
	}
}

func (s *Server) getNowPlaying(c *gin.Context) {
	if s.deps.Metadata == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": domain.ErrNotInitialized.Error()})
		return
	}
	c.JSON(http.StatusOK, s.nowPlayingView())
}

// scheduleEntryView renders the weekday by name.
type scheduleEntryView struct {
	Day   string `json:"day"`
	Show  string `json:"show"`
	Host  string `json:"host"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) getSchedule(c *gin.Context) {
	entries := s.deps.Schedule.Entries()
	views := make([]scheduleEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, scheduleEntryView{
			Day:   strings.ToLower(e.Day.String()),
			Show:  e.Show,
			Host:  e.Host,
			Start: e.Start,
			End:   e.End,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"timezone": s.deps.Schedule.Location().String(),
		"entries":  views,
	})
}

func (s *Server) getCurrentShow(c *gin.Context) {
	now := s.deps.Clock.Now()
	show := s.deps.Schedule.CurrentShow(now)
	c.JSON(http.StatusOK, gin.H{
		"show": show.Name,
		"host": show.Host,
		"at":   now.In(s.deps.Schedule.Location()).Format(time.RFC3339),
	})
}

// playbackView is the JSON form of a playback snapshot.
type playbackView struct {
	StationID        string     `json:"stationId,omitempty"`
	Playing          bool       `json:"playing"`
	Volume           int        `json:"volume"`
	Muted            bool       `json:"muted"`
	Phase            string     `json:"phase"`
	ReconnectAttempt int        `json:"reconnectAttempt"`
	NextRetryAt      *time.Time `json:"nextRetryAt,omitempty"`
}

func newPlaybackView(state domain.PlaybackState) playbackView {
	v := playbackView{
		Playing:          state.IsPlaying,
		Volume:           state.Volume,
		Muted:            state.IsMuted,
		Phase:            state.Phase.String(),
		ReconnectAttempt: state.ReconnectAttempt,
	}
	if state.CurrentStation != nil {
		v.StationID = state.CurrentStation.ID
	}
	if !state.NextRetryAt.IsZero() {
		at := state.NextRetryAt
		v.NextRetryAt = &at
	}
	return v
}

func (s *Server) getPlayback(c *gin.Context) {
	if s.deps.Playback == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": domain.ErrNotInitialized.Error()})
		return
	}
	c.JSON(http.StatusOK, newPlaybackView(s.deps.Playback.GetState()))
}

func (s *Server) onPlaybackEvent(domain.Event) {
	s.hub.Broadcast(MsgPlayback, newPlaybackView(s.deps.Playback.GetState()))
}

func (s *Server) welcomePayload() any {
	payload := gin.H{}
	if s.deps.Metadata != nil {
		payload["nowPlaying"] = s.nowPlayingView()
	}
	if s.deps.Playback != nil {
		payload["playback"] = newPlaybackView(s.deps.Playback.GetState())
	}
	return payload
}

// requestLogger logs each request through slog. Server errors are logged at warn level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request failed", attrs...)
			return
		}
		logger.Debug("request", attrs...)
	}
}
