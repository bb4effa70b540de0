package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/metrics"
	"github.com/primalradio/primalradio/internal/ports"
)

const (
	// DefaultPollInterval is the period of the metadata poll.
	DefaultPollInterval = 5 * time.Second

	// RotationSlot is the width of one placeholder rotation bucket.
	RotationSlot = 30 * time.Second

	fallbackBitrate = "128 kbps"
	fallbackFormat  = "MP3"

	// Placeholder listener counts are drawn from [listenerBase, listenerBase+listenerSpread).
	listenerBase   = 50
	listenerSpread = 450
)

// DefaultRotation is the placeholder rotation shown when no live data is available.
var DefaultRotation = []domain.TrackMetadata{
	{Title: "Primal Radio Live", Artist: "Primal Radio"},
	{Title: "Hip Hop & R&B Hits", Artist: "Primal Radio"},
	{Title: "Throwback Classics", Artist: "DJ Gadaffi"},
	{Title: "Fresh Drops", Artist: "Primal Radio"},
	{Title: "Non-Stop Mix", Artist: "DJ Gadaffi and Friends"},
}

// MetadataConfig configures the metadata poller.
type MetadataConfig struct {
	// Interval is the poll period (DefaultPollInterval when zero)
	Interval time.Duration

	// Endpoints maps station ids to their status endpoints
	Endpoints map[string]domain.StatusEndpoint

	// Rotation is the placeholder rotation (DefaultRotation when empty)
	Rotation []domain.TrackMetadata
}

type metadataSubscriber struct {
	id uint64
	fn func(domain.StationMetadata)
}

// MetadataService polls the current station's status endpoint and keeps the
// single current "now playing" record. Every refresh replaces the record
// wholesale and pushes it to subscribers in subscription order.
//
// Refreshes for a station that stopped being current while the request was in
// flight are discarded. Overlapping refreshes for the same station are applied
// in completion order. Deliveries, including the replay on Subscribe, are
// serialized by deliverMu so a subscriber never sees an older record after a
// newer one. Subscriber callbacks must not call back into the service.
type MetadataService struct {
	// Dependencies (injected)
	logger  *slog.Logger
	fetcher ports.StatusFetcher
	shows   ports.ShowResolver
	bus     ports.EventBus
	clock   clockwork.Clock
	metrics *metrics.Metrics

	// Configuration
	interval  time.Duration
	endpoints map[string]domain.StatusEndpoint
	rotation  []domain.TrackMetadata

	// State
	stationID  string
	generation uint64
	last       domain.MetadataResult
	subs       []metadataSubscriber
	nextSub    uint64

	// Lifecycle. run identifies the current Start so ticks of an earlier run never re-arm.
	running bool
	run     uint64
	timer   clockwork.Timer
	ctx     context.Context
	cancel  context.CancelFunc

	deliverMu sync.Mutex
	mu        sync.RWMutex
}

// NewMetadataService creates the poller. It does not poll until Start is called,
// but a placeholder record is available immediately. bus and m may be nil.
func NewMetadataService(
	logger *slog.Logger,
	fetcher ports.StatusFetcher,
	shows ports.ShowResolver,
	bus ports.EventBus,
	clk clockwork.Clock,
	m *metrics.Metrics,
	cfg MetadataConfig,
) *MetadataService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}

	s := &MetadataService{
		logger:    logger.With(slog.String("service", "metadata")),
		fetcher:   fetcher,
		shows:     shows,
		bus:       bus,
		clock:     clk,
		metrics:   m,
		interval:  cfg.Interval,
		endpoints: make(map[string]domain.StatusEndpoint, len(cfg.Endpoints)),
		rotation:  DefaultRotation,
	}
	for id, ep := range cfg.Endpoints {
		s.endpoints[id] = ep
	}
	if len(cfg.Rotation) > 0 {
		s.rotation = slices.Clone(cfg.Rotation)
	}

	s.last = s.fallback("", domain.FallbackNoConfig, clk.Now())
	return s
}

// Start arms the repeating poll. The poll stops when Stop is called or ctx is done.
func (s *MetadataService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.ErrAlreadyStarted
	}
	s.running = true
	s.run++
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.armLocked(s.run)

	s.logger.Debug("metadata polling started", slog.Duration("interval", s.interval))
	return nil
}

// Stop disarms the poll and cancels any in-flight request. It is safe to call
// more than once and before Start.
func (s *MetadataService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
	s.logger.Debug("metadata polling stopped")
}

// IsRunning reports whether the poll is armed.
func (s *MetadataService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// armLocked schedules the next tick of run. Caller must hold mu.
func (s *MetadataService) armLocked(run uint64) {
	s.timer = s.clock.AfterFunc(s.interval, func() { s.tick(run) })
}

// activeLocked reports whether run is the current, running poll. Caller must hold mu.
func (s *MetadataService) activeLocked(run uint64) bool {
	return s.running && s.run == run
}

func (s *MetadataService) tick(run uint64) {
	s.mu.RLock()
	active := s.activeLocked(run)
	ctx := s.ctx
	s.mu.RUnlock()
	if !active {
		return
	}

	if ctx.Err() != nil {
		s.Stop()
		return
	}

	s.Refresh(ctx)

	s.mu.Lock()
	if s.activeLocked(run) {
		s.armLocked(run)
	}
	s.mu.Unlock()
}

// SetCurrentStation switches the polled station and refreshes in the caller's goroutine.
func (s *MetadataService) SetCurrentStation(ctx context.Context, stationID string) {
	s.mu.Lock()
	changed := s.stationID != stationID
	s.stationID = stationID
	s.generation++
	s.mu.Unlock()

	if changed {
		s.logger.Debug("metadata station changed", slog.String("station", stationID))
	}
	s.Refresh(ctx)
}

// CurrentStationID returns the polled station id.
func (s *MetadataService) CurrentStationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stationID
}

// SetRotation replaces the placeholder rotation. An empty list restores DefaultRotation.
func (s *MetadataService) SetRotation(tracks []domain.TrackMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tracks) == 0 {
		s.rotation = DefaultRotation
		return
	}
	s.rotation = slices.Clone(tracks)
}

// Refresh computes a new record for the current station, stores it and pushes
// it to subscribers. The returned bool is false when the result was discarded
// because the station changed while the request was in flight.
func (s *MetadataService) Refresh(ctx context.Context) (domain.MetadataResult, bool) {
	s.mu.RLock()
	stationID := s.stationID
	generation := s.generation
	s.mu.RUnlock()

	result := s.compute(ctx, stationID)

	s.deliverMu.Lock()
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		s.deliverMu.Unlock()
		s.logger.Debug("discarding stale metadata", slog.String("station", stationID))
		return result, false
	}
	s.last = result
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(result.Metadata)
	}
	s.deliverMu.Unlock()

	s.metrics.ObserveMetadata(result)
	if s.bus != nil {
		s.bus.Publish(domain.NewNowPlayingUpdatedEvent(result))
	}
	return result, true
}

// compute builds the record for one station: live data when the endpoint
// answers, otherwise the placeholder rotation tagged with the reason.
func (s *MetadataService) compute(ctx context.Context, stationID string) domain.MetadataResult {
	now := s.clock.Now()

	endpoint, ok := s.endpoints[stationID]
	if !ok || endpoint.StatusURL == "" || s.fetcher == nil {
		return s.fallback(stationID, domain.FallbackNoConfig, now)
	}

	started := time.Now()
	payload, err := s.fetcher.Fetch(ctx, endpoint.StatusURL)
	s.metrics.ObserveStatusFetch(time.Since(started))
	if err != nil {
		reason := fallbackReason(err)
		s.logger.Debug("status fetch failed, using placeholder",
			slog.String("station", stationID),
			slog.String("reason", string(reason)),
			slog.Any("error", err))
		return s.fallback(stationID, reason, now)
	}

	return domain.LiveResult(s.merge(stationID, endpoint, payload, now))
}

// merge combines a status payload with the scheduled show. Host and show always
// come from the schedule; the free-text now-playing string is appended to the
// show name.
func (s *MetadataService) merge(stationID string, endpoint domain.StatusEndpoint, payload domain.StatusPayload, now time.Time) domain.StationMetadata {
	show := s.currentShow(now)

	title := show.Name
	if np := strings.TrimSpace(payload.NowPlaying); np != "" && np != "Unknown" {
		title = show.Name + " - " + np
	}

	art := payload.CoverArt
	if art == "" {
		art = endpoint.CoverArtURL
	}

	listeners := 0
	if payload.Connections != nil {
		listeners = *payload.Connections
	}

	bitrate := fallbackBitrate
	if payload.Bitrate != nil && *payload.Bitrate > 0 {
		bitrate = fmt.Sprintf("%d kbps", *payload.Bitrate)
	}

	format := fallbackFormat
	if len(payload.Formats) > 0 && payload.Formats[0] != "" {
		format = strings.ToUpper(payload.Formats[0])
	}

	return domain.StationMetadata{
		StationID: stationID,
		Track: domain.TrackMetadata{
			Title:       title,
			Artist:      show.Host,
			AlbumArtURL: art,
		},
		Show:      show,
		Listeners: listeners,
		Bitrate:   bitrate,
		Format:    format,
		UpdatedAt: now,
	}
}

// fallback synthesizes the placeholder record for the 30 second slot containing now.
func (s *MetadataService) fallback(stationID string, reason domain.FallbackReason, now time.Time) domain.MetadataResult {
	s.mu.RLock()
	rotation := s.rotation
	s.mu.RUnlock()

	track := rotation[RotationIndex(now, len(rotation))]
	if track.AlbumArtURL == "" {
		if endpoint, ok := s.endpoints[stationID]; ok {
			track.AlbumArtURL = endpoint.CoverArtURL
		}
	}

	return domain.FallbackResult(reason, domain.StationMetadata{
		StationID: stationID,
		Track:     track,
		Show:      s.currentShow(now),
		Listeners: listenerBase + rand.IntN(listenerSpread),
		Bitrate:   fallbackBitrate,
		Format:    fallbackFormat,
		UpdatedAt: now,
	})
}

func (s *MetadataService) currentShow(now time.Time) domain.Show {
	if s.shows == nil {
		return domain.Show{}
	}
	return s.shows.CurrentShow(now)
}

// RotationIndex returns the rotation position for the 30 second slot containing now.
func RotationIndex(now time.Time, length int) int {
	if length <= 0 {
		return 0
	}
	slot := now.Unix() / int64(RotationSlot/time.Second)
	i := int(slot % int64(length))
	if i < 0 {
		i += length
	}
	return i
}

func fallbackReason(err error) domain.FallbackReason {
	var statusErr *domain.StatusError
	var decodeErr *domain.DecodeError
	switch {
	case errors.As(err, &statusErr):
		return domain.FallbackBadStatus
	case errors.As(err, &decodeErr):
		return domain.FallbackDecodeFailed
	default:
		return domain.FallbackFetchFailed
	}
}

// Subscribe registers fn and calls it synchronously with the current record
// before returning. The returned function removes the subscription.
func (s *MetadataService) Subscribe(fn func(domain.StationMetadata)) (unsubscribe func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, metadataSubscriber{id: id, fn: fn})
	current := s.last.Metadata
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub metadataSubscriber) bool {
				return sub.id == id
			})
		})
	}
}

// SubscriberCount returns the number of active subscriptions.
func (s *MetadataService) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// CurrentMetadata returns the current record.
func (s *MetadataService) CurrentMetadata() domain.StationMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.Metadata
}

// LastResult returns the current record with its Live/Fallback tag.
func (s *MetadataService) LastResult() domain.MetadataResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Verify interface compliance at compile time
var _ ports.MetadataProvider = (*MetadataService)(nil)
