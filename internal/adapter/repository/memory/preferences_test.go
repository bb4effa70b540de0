package memory

import (
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primalradio/primalradio/internal/domain"
)

// Helper to create a test preferences repository
func newTestPreferencesRepository(t *testing.T) (*PreferencesRepository, func(key, value string)) {
	t.Helper()
	app := test.NewApp()
	t.Cleanup(app.Quit)
	prefs := app.Preferences()

	return NewPreferencesRepository(prefs), prefs.SetString
}

func TestPreferencesRepository_Volume(t *testing.T) {
	repo, _ := newTestPreferencesRepository(t)

	volume, err := repo.LoadVolume()
	require.NoError(t, err)
	assert.Equal(t, 80, volume, "default when nothing saved")

	for _, v := range []int{0, 35, 100} {
		require.NoError(t, repo.SaveVolume(v))
		got, err := repo.LoadVolume()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestPreferencesRepository_VolumeStoredAsIntegerString(t *testing.T) {
	repo, _ := newTestPreferencesRepository(t)

	require.NoError(t, repo.SaveVolume(42))
	assert.Equal(t, "42", repo.prefs.String(KeyVolume))
}

func TestPreferencesRepository_SaveVolumeOutOfRange(t *testing.T) {
	repo, _ := newTestPreferencesRepository(t)

	var vErr *domain.ValidationError
	assert.ErrorAs(t, repo.SaveVolume(101), &vErr)
	assert.ErrorAs(t, repo.SaveVolume(-1), &vErr)
}

func TestPreferencesRepository_CorruptVolume(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not a number", "loud"},
		{"float", "0.5"},
		{"out of range", "150"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, set := newTestPreferencesRepository(t)
			set(KeyVolume, tt.raw)

			volume, err := repo.LoadVolume()
			var repoErr *domain.RepositoryError
			require.ErrorAs(t, err, &repoErr)
			assert.Equal(t, "load", repoErr.Op)
			assert.Equal(t, 80, volume)
		})
	}
}

func TestPreferencesRepository_Station(t *testing.T) {
	repo, _ := newTestPreferencesRepository(t)

	station, err := repo.LoadStation()
	require.NoError(t, err)
	assert.Nil(t, station)

	want := domain.Station{
		ID:        "primal-radio-2",
		Name:      "Primal Radio 2",
		Medium:    domain.MediumAudioStream,
		IsLive:    true,
		StreamURL: "https://stream.example/2.mp3",
	}
	require.NoError(t, repo.SaveStation(&want))

	got, err := repo.LoadStation()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	require.NoError(t, repo.SaveStation(nil))
	got, err = repo.LoadStation()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPreferencesRepository_CorruptStation(t *testing.T) {
	for _, raw := range []string{"{not json", `{"name":"no id"}`} {
		repo, set := newTestPreferencesRepository(t)
		set(KeyCurrentStation, raw)

		station, err := repo.LoadStation()
		var repoErr *domain.RepositoryError
		assert.ErrorAs(t, err, &repoErr, raw)
		assert.Nil(t, station)
	}
}

func TestPreferencesRepository_Clear(t *testing.T) {
	repo, _ := newTestPreferencesRepository(t)

	require.NoError(t, repo.SaveVolume(10))
	require.NoError(t, repo.SaveStation(&domain.Station{ID: "primal-radio"}))
	require.NoError(t, repo.Clear())

	volume, err := repo.LoadVolume()
	require.NoError(t, err)
	assert.Equal(t, 80, volume)

	station, err := repo.LoadStation()
	require.NoError(t, err)
	assert.Nil(t, station)
}
