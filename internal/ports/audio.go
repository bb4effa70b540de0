// Package ports define interfaces for dependency inversion.
// These interfaces allow the core business logic to remain independent of external frameworks.
package ports

// AudioOutput is the single stream output owned by the playback session.
// It abstracts the underlying player (mpv) and allows for testing with mocks.
//
// Asynchronous failures (stalls, dropped connections) are not returned from
// these methods; implementations publish domain.OutputErrorEvent on the event bus.
//
// Implementations must be thread-safe as they may be called from multiple goroutines.
type AudioOutput interface {
	// Source methods

	// SetSource points the output at a stream URL without connecting.
	SetSource(url string) error

	// ClearSource drops the current source and closes any open connection.
	ClearSource() error

	// Load forces a fresh connection to the current source, even if the URL is unchanged.
	Load() error

	// Playback control methods

	// Play starts playback of the loaded source.
	// It returns once the stream is audible or the attempt has failed.
	// Failures are *domain.OutputError values classified by kind.
	Play() error

	// Pause stops issuing audio. The connection may be kept open.
	Pause() error

	// Volume control methods

	// SetVolume sets the output level.
	// volume: 0.0 (silent) to 1.0 (full)
	SetVolume(volume float64) error

	// SetMuted mutes or unmutes the output without changing its volume level.
	SetMuted(muted bool) error

	// Lifecycle methods

	// Close releases the output. It must be safe to call more than once.
	Close() error
}
