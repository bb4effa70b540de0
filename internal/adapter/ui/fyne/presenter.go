// Package fyne provides Fyne UI adapter implementations.
// This package implements the UI layer using the Fyne toolkit.
package fyne

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/primalradio/primalradio/internal/directory"
	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/ports"
	"github.com/primalradio/primalradio/internal/service"
)

// Presenter implements the Presenter pattern (MVP architecture).
// It coordinates between services and the UI, handling all event-driven updates.
//
// Responsibilities:
// - Subscribe to playback events and to the metadata poller
// - Map domain events to view updates
// - Translate UI commands to service method calls
//
// Metadata refreshes can block on the network, so they run off the caller's
// goroutine. Shutdown waits for them.
type Presenter struct {
	// Dependencies
	logger *slog.Logger

	// Services (injected)
	playback  *service.PlaybackService
	metadata  *service.MetadataService
	rotation  *service.RotationService
	directory *directory.Directory

	// Event bus for subscriptions
	EventBus ports.EventBus

	// UI view
	view ports.PlayerView

	// Subscriptions, released on shutdown
	subIDs        []domain.SubscriptionID
	unsubMetadata func()

	// Background refreshes
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Concurrency control
	mu           sync.RWMutex
	shutdownOnce sync.Once
}

// NewPresenter creates a new presenter and syncs the view with the current state.
// rotation may be nil.
func NewPresenter(
	logger *slog.Logger,
	playback *service.PlaybackService,
	metadata *service.MetadataService,
	rotation *service.RotationService,
	dir *directory.Directory,
	eventBus ports.EventBus,
	view ports.PlayerView,
) *Presenter {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Presenter{
		logger:    logger,
		playback:  playback,
		metadata:  metadata,
		rotation:  rotation,
		directory: dir,
		EventBus:  eventBus,
		view:      view,
		ctx:       ctx,
		cancel:    cancel,
	}

	// Sync UI with current state
	p.syncInitialState()

	// Subscribe to events
	p.subscribeToEvents()

	return p
}

// subscribeToEvents subscribes to all relevant events from the event bus.
func (p *Presenter) subscribeToEvents() {
	subscriptions := map[domain.EventType]domain.EventHandler{
		// Playback events
		domain.EventStationChanged:     p.onStationChanged,
		domain.EventPlaybackStarted:    p.onPlaybackStarted,
		domain.EventPlaybackPaused:     p.onPlaybackPaused,
		domain.EventPlaybackError:      p.onPlaybackError,
		domain.EventReconnectScheduled: p.onReconnectScheduled,
		domain.EventReconnectExhausted: p.onReconnectExhausted,

		// Volume events
		domain.EventVolumeChanged: p.onVolumeChanged,
		domain.EventMuteToggled:   p.onMuteToggled,

		// Scan events
		domain.EventScanCompleted: p.onScanCompleted,
		domain.EventScanCancelled: p.onScanCancelled,
	}

	p.mu.Lock()
	for eventType, handler := range subscriptions {
		p.subIDs = append(p.subIDs, p.EventBus.Subscribe(eventType, handler))
	}
	p.mu.Unlock()

	// Replays the current record immediately
	unsub := p.metadata.Subscribe(p.view.SetNowPlaying)

	p.mu.Lock()
	p.unsubMetadata = unsub
	p.mu.Unlock()
}

// syncInitialState pushes the restored station and volume to the view and
// points the poller at the restored station.
func (p *Presenter) syncInitialState() {
	state := p.playback.GetState()

	selectedID := ""
	if state.CurrentStation != nil {
		selectedID = state.CurrentStation.ID
	}
	p.view.SetStations(p.directory.Stations(), selectedID)
	p.view.SetVolume(state.Volume)
	p.view.SetMuteState(state.IsMuted)
	p.view.SetPlayState(state.IsPlaying)
	p.view.SetStatus(statusText(state))

	if state.CurrentStation != nil {
		p.view.SetStation(*state.CurrentStation, p.directory.ExternalPlaylistLinksFor(*state.CurrentStation))
		p.refreshMetadata(state.CurrentStation.ID)
	}
}

// refreshMetadata points the poller at a station in the background.
func (p *Presenter) refreshMetadata(stationID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.metadata.SetCurrentStation(p.ctx, stationID)
	}()
}

// statusText renders the session phase for the status line.
func statusText(state domain.PlaybackState) string {
	switch state.Phase {
	case domain.PhaseConnecting:
		return "Connecting..."
	case domain.PhasePlaying:
		return "Live"
	case domain.PhaseReconnecting:
		return fmt.Sprintf("Reconnecting (attempt %d)...", state.ReconnectAttempt)
	case domain.PhaseFailed:
		return "Stream unavailable"
	default:
		if state.CurrentStation == nil {
			return "Select a station"
		}
		return "Stopped"
	}
}

// Event handlers

func (p *Presenter) onStationChanged(event domain.Event) {
	e, ok := event.(domain.StationChangedEvent)
	if !ok {
		return
	}

	p.view.SetStation(e.Station, p.directory.ExternalPlaylistLinksFor(e.Station))
	p.view.SetPlayState(false)
	p.view.SetStatus("Stopped")

	if e.Station.ID == "" {
		return
	}
	message := e.Station.CurrentTrack
	if message == "" {
		message = "Tuned in"
	}
	p.view.ShowNotification(e.Station.Name, message)
}

func (p *Presenter) onPlaybackStarted(domain.Event) {
	p.view.SetPlayState(true)
	p.view.SetStatus("Live")
}

func (p *Presenter) onPlaybackPaused(domain.Event) {
	p.view.SetPlayState(false)
	p.view.SetStatus("Paused")
}

func (p *Presenter) onPlaybackError(event domain.Event) {
	e, ok := event.(domain.PlaybackErrorEvent)
	if !ok {
		return
	}

	p.view.SetPlayState(false)
	if !e.WillRetry {
		p.view.SetStatus("Stream unavailable")
	}
}

func (p *Presenter) onReconnectScheduled(event domain.Event) {
	e, ok := event.(domain.ReconnectScheduledEvent)
	if !ok {
		return
	}

	p.view.SetStatus(fmt.Sprintf("Reconnecting in %s (attempt %d)...", e.Delay, e.Attempt))
}

func (p *Presenter) onReconnectExhausted(event domain.Event) {
	e, ok := event.(domain.ReconnectExhaustedEvent)
	if !ok {
		return
	}

	p.view.SetPlayState(false)
	p.view.SetStatus("Stream unavailable")
	p.view.ShowNotification(e.Station.Name,
		fmt.Sprintf("Could not reconnect after %d attempts", e.Attempts))
}

func (p *Presenter) onVolumeChanged(event domain.Event) {
	e, ok := event.(domain.VolumeChangedEvent)
	if !ok {
		return
	}

	p.view.SetVolume(e.Volume)
}

func (p *Presenter) onMuteToggled(event domain.Event) {
	e, ok := event.(domain.MuteToggledEvent)
	if !ok {
		return
	}

	p.view.SetMuteState(e.Muted)
}

func (p *Presenter) onScanCompleted(event domain.Event) {
	e, ok := event.(domain.ScanCompletedEvent)
	if !ok {
		return
	}

	p.view.ShowNotification("Rotation Updated", fmt.Sprintf("Found %d tracks", len(e.Tracks)))
}

func (p *Presenter) onScanCancelled(domain.Event) {
	p.view.ShowNotification("Scan Cancelled", "Rotation scan was cancelled")
}

// UI Command handlers (called by UI)

// OnStationSelected switches to the station with the given ID.
func (p *Presenter) OnStationSelected(stationID string) {
	station, ok := p.directory.Lookup(stationID)
	if !ok {
		p.logger.Warn("unknown station selected", slog.String("station", stationID))
		return
	}

	if current := p.playback.CurrentStation(); current != nil && current.ID == station.ID {
		return
	}

	if err := p.playback.SetCurrentStation(&station); err != nil {
		p.logger.Error("station switch failed", slog.Any("error", err))
		p.view.ShowNotification("Station Error",
			fmt.Sprintf("Failed to switch station: %v", err))
		return
	}

	p.refreshMetadata(station.ID)
}

// OnPlayClicked handles the play button click.
func (p *Presenter) OnPlayClicked() {
	err := p.playback.TogglePlay()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnsupportedMedium):
		p.view.ShowNotification("Live Video",
			"This channel plays in its embedded video player")
	default:
		// Failures are reported through playback events
		p.logger.Debug("play toggle failed", slog.Any("error", err))
	}
}

// OnVolumeChanged handles volume slider changes (0-100).
func (p *Presenter) OnVolumeChanged(volume float64) {
	v := int(math.Round(volume))
	if v == p.playback.GetVolume() {
		return
	}
	if err := p.playback.SetVolume(v); err != nil {
		p.logger.Error("volume change failed", slog.Any("error", err))
		p.view.ShowNotification("Volume Error",
			fmt.Sprintf("Failed to change volume: %v", err))
	}
}

// OnMuteClicked handles the mute button click.
func (p *Presenter) OnMuteClicked() {
	if err := p.playback.ToggleMute(); err != nil {
		p.logger.Error("mute toggle failed", slog.Any("error", err))
	}
}

// OnRotationFolderOpened scans a folder and uses its tracks for the
// placeholder rotation.
func (p *Presenter) OnRotationFolderOpened(folderPath string) error {
	if p.rotation == nil {
		return domain.ErrNotInitialized
	}

	tracks, err := p.rotation.ScanFolder(p.ctx, folderPath)
	if err != nil {
		return err
	}
	if len(tracks) > 0 {
		p.metadata.SetRotation(tracks)
	}
	return nil
}

// Shutdown releases subscriptions and waits for background refreshes.
// It's safe to call multiple times (idempotent).
func (p *Presenter) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		ids := p.subIDs
		p.subIDs = nil
		unsub := p.unsubMetadata
		p.mu.Unlock()

		for _, id := range ids {
			p.EventBus.Unsubscribe(id)
		}
		if unsub != nil {
			unsub()
		}

		p.cancel()
		p.wg.Wait()
	})
}
