package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primalradio/primalradio/internal/domain"
)

func TestNew_DefaultIsFirst(t *testing.T) {
	d := New()

	stations := d.Stations()
	require.NotEmpty(t, stations)
	assert.Equal(t, stations[0], d.Default())
	assert.Equal(t, DefaultStationID, d.Default().ID)
	assert.True(t, d.Default().IsAudio())
}

func TestLookup(t *testing.T) {
	d := New()

	s, ok := d.Lookup("primal-radio-2")
	require.True(t, ok)
	assert.Equal(t, "Primal Radio 2", s.Name)

	_, ok = d.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestStreamURLFor(t *testing.T) {
	d := New()
	second, _ := d.Lookup("primal-radio-2")

	assert.Equal(t, second.StreamURL, d.StreamURLFor(second))
	assert.Equal(t, d.Default().StreamURL, d.StreamURLFor(d.Default()))
}

func TestStreamURLFor_UnknownFallsBackToDefault(t *testing.T) {
	d := New()

	url := d.StreamURLFor(domain.Station{ID: "pirate-fm", StreamURL: "http://elsewhere/stream"})
	assert.Equal(t, d.Default().StreamURL, url)

	assert.NotPanics(t, func() {
		assert.Equal(t, d.Default().StreamURL, d.StreamURLFor(domain.Station{}))
	})
}

func TestExternalPlaylistLinksFor(t *testing.T) {
	d := New()

	t.Run("audio station gets the same playlist for every player", func(t *testing.T) {
		links := d.ExternalPlaylistLinksFor(d.Default())
		require.NotNil(t, links)
		assert.Equal(t, d.Default().PlaylistURL, links.Winamp)
		assert.Equal(t, links.Winamp, links.VLC)
		assert.Equal(t, links.Winamp, links.ITunes)
	})

	t.Run("live video has no links", func(t *testing.T) {
		tv, ok := d.Lookup("primal-tv")
		require.True(t, ok)
		assert.Nil(t, d.ExternalPlaylistLinksFor(tv))
	})

	t.Run("unknown audio station uses default rules", func(t *testing.T) {
		links := d.ExternalPlaylistLinksFor(domain.Station{ID: "nope", Medium: domain.MediumAudioStream})
		require.NotNil(t, links)
		assert.Equal(t, d.Default().PlaylistURL, links.VLC)
	})

	t.Run("unknown live video station", func(t *testing.T) {
		assert.Nil(t, d.ExternalPlaylistLinksFor(domain.Station{ID: "nope", Medium: domain.MediumLiveVideo}))
	})
}

func TestStatusEndpoints(t *testing.T) {
	d := New()
	endpoints := d.StatusEndpoints()

	ep, ok := endpoints[DefaultStationID]
	require.True(t, ok)
	assert.Equal(t, d.Default().StatusURL, ep.StatusURL)
	assert.Equal(t, d.Default().CoverArtURL, ep.CoverArtURL)

	_, ok = endpoints["primal-tv"]
	assert.False(t, ok, "live video station has no status endpoint")
}

func TestNewWithStations(t *testing.T) {
	stations := []domain.Station{
		{ID: "a", StreamURL: "http://a"},
		{ID: "b", StreamURL: "http://b"},
	}
	d := NewWithStations(stations)
	stations[0].StreamURL = "mutated"

	assert.Equal(t, "http://a", d.Default().StreamURL)
	assert.Equal(t, "http://a", d.StreamURLFor(domain.Station{ID: "zzz"}))

	assert.Panics(t, func() { NewWithStations(nil) })
}

func TestStationsIsACopy(t *testing.T) {
	d := New()
	list := d.Stations()
	list[0].Name = "changed"
	assert.Equal(t, "Primal Radio", d.Default().Name)
}
