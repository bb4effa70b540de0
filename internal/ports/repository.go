// Package ports define repository interfaces for data persistence abstraction.
package ports

import (
	"github.com/primalradio/primalradio/internal/domain"
)

// PreferencesRepository persists the two listener preferences: selected station and volume.
// This abstracts the Fyne preferences storage.
//
// Thread-safety: Implementations must be thread-safe.
type PreferencesRepository interface {
	// SaveVolume persists the volume level (0-100).
	SaveVolume(volume int) error

	// LoadVolume retrieves the saved volume level.
	// If no volume was saved, returns 80 as default.
	// A stored value that does not parse is reported as a *domain.RepositoryError.
	LoadVolume() (int, error)

	// SaveStation persists the selected station. A nil station clears the value.
	SaveStation(station *domain.Station) error

	// LoadStation retrieves the saved station.
	// If no station was saved, returns (nil, nil).
	// A stored value that does not decode is reported as a *domain.RepositoryError.
	LoadStation() (*domain.Station, error)

	// Clear removes all saved preferences.
	Clear() error
}
