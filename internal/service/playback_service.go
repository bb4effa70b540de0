// Package service provides business logic for the Primal Radio player.
package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jonboulle/clockwork"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/metrics"
	"github.com/primalradio/primalradio/internal/ports"
)

// DefaultVolume is used when no volume was stored or the stored value is unreadable.
const DefaultVolume = 80

// ReconnectPolicy controls the automatic reconnect cycle.
type ReconnectPolicy struct {
	// MaxAttempts is the number of reconnect attempts per cycle
	MaxAttempts int

	// InitialDelay is the wait before the first attempt; each later attempt doubles it
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts
	MaxDelay time.Duration

	// SettleDelay is the pause between clearing the source and reconnecting
	SettleDelay time.Duration
}

// DefaultReconnectPolicy waits 1s, 2s and 4s, capped at 10s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		SettleDelay:  100 * time.Millisecond,
	}
}

// newBackOff builds the delay sequence min(initial*2^(n-1), max) with no jitter.
func (p ReconnectPolicy) newBackOff(clk clockwork.Clock) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Clock:               clk,
	}
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(p.MaxAttempts))
}

// PlaybackService is the playback session. It exclusively owns the single audio
// output: every source, volume, mute and play/pause change goes through it.
//
// Operations that touch the output are serialized by opMu, so a station switch
// always finishes tearing down the old connection before any later play attempt
// starts. State reads only take mu and never wait on the output.
type PlaybackService struct {
	// Dependencies (injected)
	logger  *slog.Logger
	output  ports.AudioOutput
	bus     ports.EventBus
	prefs   ports.PreferencesRepository
	streams ports.StreamResolver
	clock   clockwork.Clock
	metrics *metrics.Metrics
	policy  ReconnectPolicy

	// State
	station *domain.Station
	playing bool
	volume  int
	muted   bool
	phase   domain.SessionPhase
	attempt int
	retryAt time.Time
	lastErr error

	// Reconnect bookkeeping. epoch changes whenever pending timers must become no-ops.
	backoff backoff.BackOff
	timer   clockwork.Timer
	epoch   uint64

	// Events raised while locked, published after unlock
	pending []domain.Event
	evMu    sync.Mutex

	subID  domain.SubscriptionID
	closed bool

	// Concurrency control
	opMu sync.Mutex
	mu   sync.RWMutex
}

// NewPlaybackService creates the playback session and restores the stored
// station and volume. Unreadable preferences fall back to no station and volume 80.
func NewPlaybackService(
	logger *slog.Logger,
	output ports.AudioOutput,
	bus ports.EventBus,
	prefs ports.PreferencesRepository,
	streams ports.StreamResolver,
	clk clockwork.Clock,
	m *metrics.Metrics,
	policy ReconnectPolicy,
) *PlaybackService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	s := &PlaybackService{
		logger:  logger.With(slog.String("service", "playback")),
		output:  output,
		bus:     bus,
		prefs:   prefs,
		streams: streams,
		clock:   clk,
		metrics: m,
		policy:  policy,
		volume:  DefaultVolume,
		phase:   domain.PhaseIdle,
		backoff: policy.newBackOff(clk),
	}

	s.restore()

	if err := output.SetVolume(float64(s.volume) / 100); err != nil {
		s.logger.Warn("failed to apply restored volume", slog.Any("error", err))
	}

	s.subID = bus.Subscribe(domain.EventOutputError, s.onOutputError)

	s.logger.Debug("playback service initialized", slog.Int("volume", s.volume))
	return s
}

// restore reads the two persisted preferences once.
func (s *PlaybackService) restore() {
	if s.prefs == nil {
		return
	}

	if volume, err := s.prefs.LoadVolume(); err != nil {
		s.logger.Warn("stored volume unreadable, using default", slog.Any("error", err))
	} else if volume >= 0 && volume <= 100 {
		s.volume = volume
	}

	station, err := s.prefs.LoadStation()
	if err != nil {
		s.logger.Warn("stored station unreadable, starting without one", slog.Any("error", err))
		return
	}
	s.station = station
}

// SetCurrentStation switches stations. Any pending reconnect is canceled and the
// old connection is torn down (pause, clear source, reload) before anything else.
// Playback does not start automatically. A nil station deselects.
func (s *PlaybackService) SetCurrentStation(station *domain.Station) error {
	s.opMu.Lock()
	defer s.flush()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return domain.ErrOutputUnavailable
	}

	s.mu.Lock()
	s.cancelReconnectLocked()
	s.playing = false
	s.lastErr = nil
	s.setPhaseLocked(domain.PhaseIdle)
	if station != nil {
		copied := *station
		s.station = &copied
	} else {
		s.station = nil
	}
	s.mu.Unlock()

	s.teardown()

	if s.prefs != nil {
		if err := s.prefs.SaveStation(station); err != nil {
			s.logger.Warn("failed to persist station", slog.Any("error", err))
		}
	}

	if station != nil {
		s.logger.Info("station changed", slog.String("station", station.ID))
		s.metrics.ObserveStationSwitch(station.ID)
		s.queue(domain.NewStationChangedEvent(*station))
	}
	return nil
}

// teardown disconnects the output from whatever it was playing.
// Failures are logged; a switch never fails because the old stream misbehaved.
func (s *PlaybackService) teardown() {
	if err := s.output.Pause(); err != nil {
		s.logger.Warn("teardown: pause failed", slog.Any("error", err))
	}
	if err := s.output.ClearSource(); err != nil {
		s.logger.Warn("teardown: clear source failed", slog.Any("error", err))
	}
	if err := s.output.Load(); err != nil {
		s.logger.Debug("teardown: reload failed", slog.Any("error", err))
	}
}

// TogglePlay pauses when playing; otherwise it reconnects to the current station
// and starts playback. With no station selected it does nothing.
// Live-video stations return domain.ErrUnsupportedMedium without changing state.
func (s *PlaybackService) TogglePlay() error {
	s.opMu.Lock()
	defer s.flush()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return domain.ErrOutputUnavailable
	}

	s.mu.Lock()
	if s.station == nil {
		s.mu.Unlock()
		s.logger.Debug("toggle ignored: no station selected")
		return nil
	}
	if !s.station.IsAudio() {
		s.mu.Unlock()
		return domain.ErrUnsupportedMedium
	}

	if s.playing {
		s.cancelReconnectLocked()
		station := *s.station
		s.mu.Unlock()

		if err := s.output.Pause(); err != nil {
			s.logger.Warn("pause failed", slog.Any("error", err))
		}

		s.mu.Lock()
		s.playing = false
		s.setPhaseLocked(domain.PhaseIdle)
		s.mu.Unlock()

		s.queue(domain.NewPlaybackPausedEvent(station))
		return nil
	}

	// Manual play starts a fresh cycle
	s.cancelReconnectLocked()
	s.lastErr = nil
	s.mu.Unlock()

	return s.connect(false)
}

// connect points the output at the current station's stream and plays it.
// Caller must hold opMu. reconnecting selects the reconnect sequence, which
// is entered after the source was cleared and the settle delay elapsed.
func (s *PlaybackService) connect(reconnecting bool) error {
	s.mu.Lock()
	station := *s.station
	s.setPhaseLocked(domain.PhaseConnecting)
	s.mu.Unlock()

	url := s.streams.StreamURLFor(station)
	s.logger.Debug("connecting", slog.String("station", station.ID), slog.String("url", url), slog.Bool("reconnect", reconnecting))

	err := s.output.SetSource(url)
	if err == nil {
		err = s.output.Load()
	}
	if err == nil {
		err = s.output.Play()
	}

	s.mu.Lock()
	if err != nil {
		s.failLocked(station, err)
		s.mu.Unlock()
		return err
	}

	s.playing = true
	s.attempt = 0
	s.retryAt = time.Time{}
	s.lastErr = nil
	s.backoff.Reset()
	s.setPhaseLocked(domain.PhasePlaying)
	s.mu.Unlock()

	s.logger.Info("playback started", slog.String("station", station.ID))
	s.queue(domain.NewPlaybackStartedEvent(station, url))
	return nil
}

// failLocked records a failed attempt and, for network-class failures, arms the
// next reconnect. Caller must hold mu.
func (s *PlaybackService) failLocked(station domain.Station, err error) {
	s.playing = false
	s.lastErr = err

	if !domain.IsNetworkError(err) {
		s.setPhaseLocked(domain.PhaseFailed)
		s.logger.Warn("playback failed", slog.String("station", station.ID), slog.Any("error", err))
		s.queue(domain.NewPlaybackErrorEvent(station, err, false))
		return
	}

	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop {
		attempts := s.attempt
		s.attempt = 0
		s.retryAt = time.Time{}
		s.setPhaseLocked(domain.PhaseFailed)
		s.metrics.ObserveReconnectExhausted()
		s.logger.Warn("reconnect attempts exhausted", slog.String("station", station.ID), slog.Int("attempts", attempts), slog.Any("error", err))
		s.queue(domain.NewPlaybackErrorEvent(station, err, false))
		s.queue(domain.NewReconnectExhaustedEvent(station, attempts, err))
		return
	}

	s.attempt++
	s.retryAt = s.clock.Now().Add(delay)
	s.setPhaseLocked(domain.PhaseReconnecting)
	s.metrics.ObserveReconnectAttempt()

	epoch := s.epoch
	s.timer = s.clock.AfterFunc(delay, func() { s.reconnect(epoch) })

	s.logger.Info("reconnect scheduled",
		slog.String("station", station.ID),
		slog.Int("attempt", s.attempt),
		slog.Duration("delay", delay))
	s.queue(domain.NewPlaybackErrorEvent(station, err, true))
	s.queue(domain.NewReconnectScheduledEvent(station, s.attempt, delay))
}

// reconnect runs when the backoff delay of an attempt elapses: the source is
// cleared and the connection is retried after the settle delay.
func (s *PlaybackService) reconnect(epoch uint64) {
	s.opMu.Lock()
	defer s.flush()
	defer s.opMu.Unlock()

	if !s.current(epoch, domain.PhaseReconnecting) {
		return
	}

	if err := s.output.ClearSource(); err != nil {
		s.logger.Debug("reconnect: clear source failed", slog.Any("error", err))
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.timer = s.clock.AfterFunc(s.policy.SettleDelay, func() { s.retry(epoch) })
	}
	s.mu.Unlock()
}

// retry is the second half of a reconnect attempt.
func (s *PlaybackService) retry(epoch uint64) {
	s.opMu.Lock()
	defer s.flush()
	defer s.opMu.Unlock()

	if !s.current(epoch, domain.PhaseReconnecting) {
		return
	}

	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()

	_ = s.connect(true)
}

// current reports whether a timer armed in epoch is still relevant.
func (s *PlaybackService) current(epoch uint64, phase domain.SessionPhase) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.epoch == epoch && s.phase == phase && s.station != nil
}

// onOutputError handles failures the output reports while a stream is playing.
// Handling is moved off the publisher's goroutine so the output's event loop
// never waits on the session.
func (s *PlaybackService) onOutputError(event domain.Event) {
	e, ok := event.(domain.OutputErrorEvent)
	if !ok {
		return
	}

	s.mu.RLock()
	relevant := !s.closed && s.phase == domain.PhasePlaying && s.playing
	epoch := s.epoch
	s.mu.RUnlock()

	if !relevant {
		s.logger.Debug("output error ignored", slog.Any("error", e.Error))
		return
	}

	s.clock.AfterFunc(0, func() { s.streamLost(epoch, e.Error) })
}

// streamLost starts a fresh reconnect cycle for a stream that dropped while playing.
func (s *PlaybackService) streamLost(epoch uint64, err error) {
	s.opMu.Lock()
	defer s.flush()
	defer s.opMu.Unlock()

	if !s.current(epoch, domain.PhasePlaying) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Warn("stream lost", slog.String("station", s.station.ID), slog.Any("error", err))
	s.attempt = 0
	s.backoff.Reset()
	s.failLocked(*s.station, err)
}

// cancelReconnectLocked disarms any pending attempt and resets the counter.
// Caller must hold mu.
func (s *PlaybackService) cancelReconnectLocked() {
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.attempt = 0
	s.retryAt = time.Time{}
	s.backoff.Reset()
}

// setPhaseLocked updates the phase. Caller must hold mu.
func (s *PlaybackService) setPhaseLocked(phase domain.SessionPhase) {
	s.phase = phase
	s.metrics.SetPhase(phase)
}

// SetVolume sets the volume (0 to 100), applies it to the output and persists it.
// Volume 0 does not mute.
func (s *PlaybackService) SetVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return domain.ErrInvalidVolume
	}

	s.opMu.Lock()
	defer s.flush()
	defer s.opMu.Unlock()

	if err := s.output.SetVolume(float64(volume) / 100); err != nil {
		return err
	}

	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()

	if s.prefs != nil {
		if err := s.prefs.SaveVolume(volume); err != nil {
			s.logger.Warn("failed to persist volume", slog.Any("error", err))
		}
	}

	s.queue(domain.NewVolumeChangedEvent(volume))
	return nil
}

// ToggleMute mutes or unmutes the output. The volume level is left untouched.
func (s *PlaybackService) ToggleMute() error {
	s.opMu.Lock()
	defer s.flush()
	defer s.opMu.Unlock()

	s.mu.RLock()
	muted := !s.muted
	s.mu.RUnlock()

	if err := s.output.SetMuted(muted); err != nil {
		return err
	}

	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()

	s.queue(domain.NewMuteToggledEvent(muted))
	return nil
}

// GetVolume returns the current volume (0 to 100).
func (s *PlaybackService) GetVolume() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// IsMuted returns true if playback is muted.
func (s *PlaybackService) IsMuted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

// IsPlaying returns true while the stream is playing.
func (s *PlaybackService) IsPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

// CurrentStation returns a copy of the selected station, or nil.
func (s *PlaybackService) CurrentStation() *domain.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.station == nil {
		return nil
	}
	copied := *s.station
	return &copied
}

// LastError returns the error of the last failed attempt in the current cycle.
func (s *PlaybackService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// GetState returns a snapshot of the session.
func (s *PlaybackService) GetState() domain.PlaybackState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := domain.PlaybackState{
		IsPlaying:        s.playing,
		Volume:           s.volume,
		IsMuted:          s.muted,
		ReconnectAttempt: s.attempt,
		Phase:            s.phase,
		NextRetryAt:      s.retryAt,
	}
	if s.station != nil {
		copied := *s.station
		state.CurrentStation = &copied
	}
	return state
}

// Shutdown cancels any pending reconnect, stops playback and closes the output.
// It is safe to call more than once.
func (s *PlaybackService) Shutdown() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelReconnectLocked()
	s.playing = false
	s.setPhaseLocked(domain.PhaseIdle)
	s.mu.Unlock()

	s.evMu.Lock()
	s.pending = nil
	s.evMu.Unlock()

	s.bus.Unsubscribe(s.subID)

	var errs []error
	if err := s.output.Pause(); err != nil && !errors.Is(err, domain.ErrOutputUnavailable) {
		errs = append(errs, err)
	}
	if err := s.output.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Debug("playback service shut down")
	return errors.Join(errs...)
}

func (s *PlaybackService) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// queue buffers an event until the current operation releases its locks.
func (s *PlaybackService) queue(event domain.Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.pending = append(s.pending, event)
}

// flush publishes buffered events. It runs after opMu is released, so handlers
// may call back into the session.
func (s *PlaybackService) flush() {
	s.evMu.Lock()
	events := s.pending
	s.pending = nil
	s.evMu.Unlock()

	for _, e := range events {
		s.bus.Publish(e)
	}
}

// Verify that PlaybackService implements the expected interface patterns
var _ interface {
	SetCurrentStation(*domain.Station) error
	TogglePlay() error
	SetVolume(int) error
	ToggleMute() error
	GetVolume() int
	IsMuted() bool
	IsPlaying() bool
	GetState() domain.PlaybackState
	Shutdown() error
} = (*PlaybackService)(nil)
