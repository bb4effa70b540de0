// Package domain defines events for the event-driven architecture.
// Events decouple the playback session and metadata poller from the display surfaces.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Station events
	EventStationChanged EventType = "station.changed"

	// Playback events
	EventPlaybackStarted    EventType = "playback.started"
	EventPlaybackPaused     EventType = "playback.paused"
	EventPlaybackError      EventType = "playback.error"
	EventReconnectScheduled EventType = "playback.reconnect_scheduled"
	EventReconnectExhausted EventType = "playback.reconnect_exhausted"

	// Output events, published by audio output adapters
	EventOutputError EventType = "output.error"

	// Volume events
	EventVolumeChanged EventType = "volume.changed"
	EventMuteToggled   EventType = "mute.toggled"

	// Metadata events
	EventNowPlayingUpdated EventType = "nowplaying.updated"

	// Rotation scanning events
	EventScanStarted   EventType = "scan.started"
	EventScanCompleted EventType = "scan.completed"
	EventScanCancelled EventType = "scan.cancelled"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// StationChangedEvent is published when the selected station changes.
type StationChangedEvent struct {
	baseEvent
	Station Station
}

// Type returns the event type.
func (e StationChangedEvent) Type() EventType {
	return EventStationChanged
}

// NewStationChangedEvent creates a new StationChangedEvent.
func NewStationChangedEvent(station Station) StationChangedEvent {
	return StationChangedEvent{
		baseEvent: newBaseEvent(),
		Station:   station,
	}
}

// PlaybackStartedEvent is published when the output starts playing a station.
type PlaybackStartedEvent struct {
	baseEvent
	Station Station
	URL     string
}

// Type returns the event type.
func (e PlaybackStartedEvent) Type() EventType {
	return EventPlaybackStarted
}

// NewPlaybackStartedEvent creates a new PlaybackStartedEvent.
func NewPlaybackStartedEvent(station Station, url string) PlaybackStartedEvent {
	return PlaybackStartedEvent{
		baseEvent: newBaseEvent(),
		Station:   station,
		URL:       url,
	}
}

// PlaybackPausedEvent is published when playback is paused by the listener.
type PlaybackPausedEvent struct {
	baseEvent
	Station Station
}

// Type returns the event type.
func (e PlaybackPausedEvent) Type() EventType {
	return EventPlaybackPaused
}

// NewPlaybackPausedEvent creates a new PlaybackPausedEvent.
func NewPlaybackPausedEvent(station Station) PlaybackPausedEvent {
	return PlaybackPausedEvent{
		baseEvent: newBaseEvent(),
		Station:   station,
	}
}

// PlaybackErrorEvent is published when a play attempt fails.
// WillRetry tells whether a reconnect is scheduled.
type PlaybackErrorEvent struct {
	baseEvent
	Station   Station
	Error     error
	WillRetry bool
}

// Type returns the event type.
func (e PlaybackErrorEvent) Type() EventType {
	return EventPlaybackError
}

// NewPlaybackErrorEvent creates a new PlaybackErrorEvent.
func NewPlaybackErrorEvent(station Station, err error, willRetry bool) PlaybackErrorEvent {
	return PlaybackErrorEvent{
		baseEvent: newBaseEvent(),
		Station:   station,
		Error:     err,
		WillRetry: willRetry,
	}
}

// ReconnectScheduledEvent is published when a reconnect attempt is armed.
type ReconnectScheduledEvent struct {
	baseEvent
	Station Station
	Attempt int
	Delay   time.Duration
}

// Type returns the event type.
func (e ReconnectScheduledEvent) Type() EventType {
	return EventReconnectScheduled
}

// NewReconnectScheduledEvent creates a new ReconnectScheduledEvent.
func NewReconnectScheduledEvent(station Station, attempt int, delay time.Duration) ReconnectScheduledEvent {
	return ReconnectScheduledEvent{
		baseEvent: newBaseEvent(),
		Station:   station,
		Attempt:   attempt,
		Delay:     delay,
	}
}

// ReconnectExhaustedEvent is published when the retry budget is used up.
type ReconnectExhaustedEvent struct {
	baseEvent
	Station  Station
	Attempts int
	Error    error
}

// Type returns the event type.
func (e ReconnectExhaustedEvent) Type() EventType {
	return EventReconnectExhausted
}

// NewReconnectExhaustedEvent creates a new ReconnectExhaustedEvent.
func NewReconnectExhaustedEvent(station Station, attempts int, err error) ReconnectExhaustedEvent {
	return ReconnectExhaustedEvent{
		baseEvent: newBaseEvent(),
		Station:   station,
		Attempts:  attempts,
		Error:     err,
	}
}

// OutputErrorEvent is published by an audio output when the stream fails
// outside of a Play call (stall, dropped connection).
type OutputErrorEvent struct {
	baseEvent
	URL   string
	Error error
}

// Type returns the event type.
func (e OutputErrorEvent) Type() EventType {
	return EventOutputError
}

// NewOutputErrorEvent creates a new OutputErrorEvent.
func NewOutputErrorEvent(url string, err error) OutputErrorEvent {
	return OutputErrorEvent{
		baseEvent: newBaseEvent(),
		URL:       url,
		Error:     err,
	}
}

// VolumeChangedEvent is published when the volume changes.
type VolumeChangedEvent struct {
	baseEvent
	Volume int // 0 to 100
}

// Type returns the event type.
func (e VolumeChangedEvent) Type() EventType {
	return EventVolumeChanged
}

// NewVolumeChangedEvent creates a new VolumeChangedEvent.
func NewVolumeChangedEvent(volume int) VolumeChangedEvent {
	return VolumeChangedEvent{
		baseEvent: newBaseEvent(),
		Volume:    volume,
	}
}

// MuteToggledEvent is published when mute is toggled.
type MuteToggledEvent struct {
	baseEvent
	Muted bool
}

// Type returns the event type.
func (e MuteToggledEvent) Type() EventType {
	return EventMuteToggled
}

// NewMuteToggledEvent creates a new MuteToggledEvent.
func NewMuteToggledEvent(muted bool) MuteToggledEvent {
	return MuteToggledEvent{
		baseEvent: newBaseEvent(),
		Muted:     muted,
	}
}

// NowPlayingUpdatedEvent is published after every metadata refresh.
type NowPlayingUpdatedEvent struct {
	baseEvent
	Result MetadataResult
}

// Type returns the event type.
func (e NowPlayingUpdatedEvent) Type() EventType {
	return EventNowPlayingUpdated
}

// NewNowPlayingUpdatedEvent creates a new NowPlayingUpdatedEvent.
func NewNowPlayingUpdatedEvent(result MetadataResult) NowPlayingUpdatedEvent {
	return NowPlayingUpdatedEvent{
		baseEvent: newBaseEvent(),
		Result:    result,
	}
}

// ScanStartedEvent is published when a rotation scan starts.
type ScanStartedEvent struct {
	baseEvent
	Path string
}

// Type returns the event type.
func (e ScanStartedEvent) Type() EventType {
	return EventScanStarted
}

// NewScanStartedEvent creates a new ScanStartedEvent.
func NewScanStartedEvent(path string) ScanStartedEvent {
	return ScanStartedEvent{
		baseEvent: newBaseEvent(),
		Path:      path,
	}
}

// ScanCompletedEvent is published when a rotation scan completes.
type ScanCompletedEvent struct {
	baseEvent
	Tracks []TrackMetadata
}

// Type returns the event type.
func (e ScanCompletedEvent) Type() EventType {
	return EventScanCompleted
}

// NewScanCompletedEvent creates a new ScanCompletedEvent.
func NewScanCompletedEvent(tracks []TrackMetadata) ScanCompletedEvent {
	return ScanCompletedEvent{
		baseEvent: newBaseEvent(),
		Tracks:    tracks,
	}
}

// ScanCancelledEvent is published when a rotation scan is canceled.
type ScanCancelledEvent struct {
	baseEvent
	Reason string
}

// Type returns the event type.
func (e ScanCancelledEvent) Type() EventType {
	return EventScanCancelled
}

// NewScanCancelledEvent creates a new ScanCancelledEvent.
func NewScanCancelledEvent(reason string) ScanCancelledEvent {
	return ScanCancelledEvent{
		baseEvent: newBaseEvent(),
		Reason:    reason,
	}
}
