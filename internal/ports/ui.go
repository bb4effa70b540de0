// Package ports define the view interface for UI abstraction.
// This interface allows the presenter to update the UI without depending on Fyne directly.
package ports

import (
	"github.com/primalradio/primalradio/internal/domain"
)

// PlayerView is the interface for the player window.
// The presenter receives events from the event bus and metadata updates from
// the poller, then calls these methods to update the view.
//
// Thread-safety: Implementations marshal calls onto the UI thread themselves.
type PlayerView interface {
	// Station methods

	// SetStations fills the station selector.
	SetStations(stations []domain.Station, selectedID string)

	// SetStation shows the selected station and its external player links (nil if none).
	SetStation(station domain.Station, links *domain.PlaylistLinks)

	// Now playing methods

	// SetNowPlaying shows the latest metadata record.
	SetNowPlaying(metadata domain.StationMetadata)

	// Playback state methods

	// SetPlayState updates the play/pause button.
	SetPlayState(playing bool)

	// SetStatus shows a short status line (connecting, reconnecting in 2s, stopped).
	SetStatus(status string)

	// SetVolume updates the volume slider (0-100).
	SetVolume(volume int)

	// SetMuteState updates the mute button.
	SetMuteState(muted bool)

	// Notification methods

	// ShowNotification displays a desktop notification.
	ShowNotification(title, message string)
}
