// Package memory provides preference storage backed by Fyne's key/value store.
package memory

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/ports"
)

// Storage keys. Values are strings: the station as JSON, the volume as a decimal integer.
const (
	KeyCurrentStation = "currentStation"
	KeyVolume         = "volume"
)

// defaultVolume is returned when no volume was saved.
const defaultVolume = 80

const repoType = "preferences"

// PreferencesRepository implements ports.PreferencesRepository using Fyne preferences.
//
// Thread-safe: All operations protected by sync.RWMutex.
type PreferencesRepository struct {
	prefs fyne.Preferences
	mu    sync.RWMutex
}

// NewPreferencesRepository creates a new preferences repository.
// The preferences parameter should be obtained from fyne.CurrentApp().Preferences().
func NewPreferencesRepository(prefs fyne.Preferences) *PreferencesRepository {
	return &PreferencesRepository{
		prefs: prefs,
	}
}

// SaveVolume persists the volume level as an integer string.
func (r *PreferencesRepository) SaveVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return domain.NewValidationError("volume", volume, "must be between 0 and 100")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.SetString(KeyVolume, strconv.Itoa(volume))
	return nil
}

// LoadVolume retrieves the saved volume level, 80 if none was saved.
func (r *PreferencesRepository) LoadVolume() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	raw := strings.TrimSpace(r.prefs.String(KeyVolume))
	if raw == "" {
		return defaultVolume, nil
	}

	volume, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVolume, domain.NewRepositoryError("load", repoType, "volume is not an integer", err)
	}
	if volume < 0 || volume > 100 {
		return defaultVolume, domain.NewRepositoryError("load", repoType, "volume out of range", domain.ErrInvalidVolume)
	}
	return volume, nil
}

// SaveStation persists the selected station as JSON. A nil station removes the value.
func (r *PreferencesRepository) SaveStation(station *domain.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if station == nil {
		r.prefs.RemoveValue(KeyCurrentStation)
		return nil
	}

	data, err := json.Marshal(station)
	if err != nil {
		return domain.NewRepositoryError("save", repoType, "failed to marshal station", err)
	}

	r.prefs.SetString(KeyCurrentStation, string(data))
	return nil
}

// LoadStation retrieves the saved station, nil if none was saved.
func (r *PreferencesRepository) LoadStation() (*domain.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := r.prefs.String(KeyCurrentStation)
	if data == "" {
		return nil, nil
	}

	var station domain.Station
	if err := json.Unmarshal([]byte(data), &station); err != nil {
		return nil, domain.NewRepositoryError("load", repoType, "failed to unmarshal station", err)
	}
	if station.ID == "" {
		return nil, domain.NewRepositoryError("load", repoType, "stored station has no id", nil)
	}

	return &station, nil
}

// Clear removes all saved preferences.
func (r *PreferencesRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.RemoveValue(KeyCurrentStation)
	r.prefs.RemoveValue(KeyVolume)
	return nil
}

// Verify that PreferencesRepository implements the interface
var _ ports.PreferencesRepository = (*PreferencesRepository)(nil)
