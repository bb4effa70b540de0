// Package mock provides a mock implementation of the AudioOutput interface.
// It backs the service tests and the --mock-audio mode without spawning mpv.
package mock

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/ports"
)

// Output is a mock implementation of the AudioOutput interface.
// It keeps the output state in memory and records every call in order.
//
// Thread-safety: This implementation is thread-safe.
type Output struct {
	// Dependencies
	logger *slog.Logger
	bus    ports.EventBus

	// Output state
	source  string
	loaded  bool
	playing bool
	volume  float64
	muted   bool
	closed  bool

	// Recorded calls, e.g. "set_source http://x", "load", "play"
	calls []string

	// Behavior configuration (for testing error scenarios)
	failPlay   error
	playErrors []error
	failLoad   error

	mu sync.RWMutex
}

// NewOutput creates a new mock output. bus may be nil when SimulateError is not used.
func NewOutput(logger *slog.Logger, bus ports.EventBus) *Output {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Output{
		logger: logger.With(slog.String("component", "mock-output")),
		bus:    bus,
		volume: 1.0,
	}
}

// SetFailPlay makes every Play call fail with err until reset with nil.
func (m *Output) SetFailPlay(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlay = err
}

// QueuePlayErrors makes the next Play calls fail with the given errors, one per call.
// A nil entry lets that call succeed.
func (m *Output) QueuePlayErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErrors = append(m.playErrors, errs...)
}

// SetFailLoad makes every Load call fail with err until reset with nil.
func (m *Output) SetFailLoad(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoad = err
}

// SetSource records the stream URL.
func (m *Output) SetSource(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrOutputUnavailable
	}
	m.record("set_source " + url)
	m.source = url
	m.loaded = false
	return nil
}

// ClearSource drops the stream URL and stops playback.
func (m *Output) ClearSource() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrOutputUnavailable
	}
	m.record("clear_source")
	m.source = ""
	m.loaded = false
	m.playing = false
	return nil
}

// Load marks the current source as freshly connected.
func (m *Output) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrOutputUnavailable
	}
	m.record("load")
	if m.failLoad != nil {
		return m.failLoad
	}
	m.loaded = true
	m.playing = false
	return nil
}

// Play starts playback unless a failure is configured.
func (m *Output) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrOutputUnavailable
	}
	m.record("play")

	if len(m.playErrors) > 0 {
		err := m.playErrors[0]
		m.playErrors = m.playErrors[1:]
		if err != nil {
			m.playing = false
			return err
		}
	} else if m.failPlay != nil {
		m.playing = false
		return m.failPlay
	}

	if m.source == "" {
		return domain.NewOutputError("play", "", domain.KindUnsupported, "no source set", nil)
	}
	m.playing = true
	return nil
}

// Pause stops playback.
func (m *Output) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrOutputUnavailable
	}
	m.record("pause")
	m.playing = false
	return nil
}

// SetVolume sets the output level (0.0 to 1.0).
func (m *Output) SetVolume(volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrOutputUnavailable
	}
	if volume < 0 || volume > 1 {
		return domain.ErrInvalidVolume
	}
	m.record(fmt.Sprintf("volume %.2f", volume))
	m.volume = volume
	return nil
}

// SetMuted mutes or unmutes the output.
func (m *Output) SetMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrOutputUnavailable
	}
	m.record(fmt.Sprintf("muted %t", muted))
	m.muted = muted
	return nil
}

// Close releases the output. Further calls fail with ErrOutputUnavailable.
func (m *Output) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.record("close")
	m.closed = true
	m.playing = false
	return nil
}

// SimulateError reports an asynchronous stream failure, the way a real output
// does when a live connection drops.
func (m *Output) SimulateError(err error) {
	m.mu.Lock()
	m.playing = false
	source := m.source
	bus := m.bus
	m.mu.Unlock()

	m.logger.Debug("simulating output error", slog.Any("error", err))
	if bus != nil {
		bus.Publish(domain.NewOutputErrorEvent(source, err))
	}
}

// record appends a call. Caller must hold the lock.
func (m *Output) record(call string) {
	m.calls = append(m.calls, call)
}

// Calls returns a copy of the recorded calls.
func (m *Output) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CountCalls returns how many recorded calls equal call.
func (m *Output) CountCalls(call string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (m *Output) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Source returns the current stream URL.
func (m *Output) Source() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// IsPlaying reports whether the output is playing.
func (m *Output) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playing
}

// Volume returns the output level.
func (m *Output) Volume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// IsMuted reports whether the output is muted.
func (m *Output) IsMuted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muted
}

// Verify that Output implements the AudioOutput interface
var _ ports.AudioOutput = (*Output)(nil)
