// Package directory holds the compiled-in station list and its URL resolution rules.
package directory

import (
	"github.com/primalradio/primalradio/internal/domain"
)

const streamHost = "https://stream.primalradio.net"

// DefaultStationID is the id of the first station in the directory.
const DefaultStationID = "primal-radio"

// builtin is the compiled-in station list. The first entry is the default.
var builtin = []domain.Station{
	{
		ID:           DefaultStationID,
		Name:         "Primal Radio",
		Medium:       domain.MediumAudioStream,
		IsLive:       true,
		CurrentTrack: "Live Stream",
		StreamURL:    streamHost + "/radio/8000/live.mp3",
		PlaylistURL:  streamHost + "/public/primal_radio/playlist.pls",
		StatusURL:    streamHost + "/api/status/primal_radio",
		CoverArtURL:  streamHost + "/static/covers/primal_radio.jpg",
		Genre:        "Hip Hop / R&B",
	},
	{
		ID:           "primal-radio-2",
		Name:         "Primal Radio 2",
		Medium:       domain.MediumAudioStream,
		IsLive:       true,
		CurrentTrack: "Classics Rotation",
		StreamURL:    streamHost + "/radio/8010/classics.mp3",
		PlaylistURL:  streamHost + "/public/primal_radio_2/playlist.pls",
		StatusURL:    streamHost + "/api/status/primal_radio_2",
		CoverArtURL:  streamHost + "/static/covers/primal_radio_2.jpg",
		Genre:        "Classics",
	},
	{
		ID:           "primal-tv",
		Name:         "Primal TV",
		Medium:       domain.MediumLiveVideo,
		IsLive:       false,
		CurrentTrack: "Primal TV Live",
		StreamURL:    "https://player.primalradio.net/embed/primal-tv",
	},
}

// Directory is an immutable station list.
type Directory struct {
	stations []domain.Station
	byID     map[string]int
}

// New returns the compiled-in directory.
func New() *Directory {
	return NewWithStations(builtin)
}

// NewWithStations builds a directory from an explicit list. The first station is the default.
// It panics on an empty list, which is a programming error.
func NewWithStations(stations []domain.Station) *Directory {
	if len(stations) == 0 {
		panic("directory: at least one station is required")
	}
	d := &Directory{
		stations: make([]domain.Station, len(stations)),
		byID:     make(map[string]int, len(stations)),
	}
	copy(d.stations, stations)
	for i, s := range d.stations {
		if _, dup := d.byID[s.ID]; !dup {
			d.byID[s.ID] = i
		}
	}
	return d
}

// Stations returns the stations in directory order.
func (d *Directory) Stations() []domain.Station {
	out := make([]domain.Station, len(d.stations))
	copy(out, d.stations)
	return out
}

// Default returns the first station.
func (d *Directory) Default() domain.Station {
	return d.stations[0]
}

// Lookup finds a station by id.
func (d *Directory) Lookup(id string) (domain.Station, bool) {
	i, ok := d.byID[id]
	if !ok {
		return domain.Station{}, false
	}
	return d.stations[i], true
}

// resolve returns the directory entry for the station, or the default for unknown ids.
func (d *Directory) resolve(station domain.Station) domain.Station {
	if s, ok := d.Lookup(station.ID); ok {
		return s
	}
	return d.Default()
}

// StreamURLFor returns the stream URL for the station.
// Unknown ids fall back to the default station's URL.
func (d *Directory) StreamURLFor(station domain.Station) string {
	return d.resolve(station).StreamURL
}

// ExternalPlaylistLinksFor returns the Winamp/VLC/iTunes links for the station.
// All three players receive the same playlist file. Live-video stations have none.
func (d *Directory) ExternalPlaylistLinksFor(station domain.Station) *domain.PlaylistLinks {
	if station.Medium == domain.MediumLiveVideo {
		return nil
	}
	resolved := d.resolve(station)
	if resolved.Medium == domain.MediumLiveVideo || resolved.PlaylistURL == "" {
		return nil
	}
	return &domain.PlaylistLinks{
		Winamp: resolved.PlaylistURL,
		VLC:    resolved.PlaylistURL,
		ITunes: resolved.PlaylistURL,
	}
}

// StatusEndpoints returns the status configuration keyed by station id.
// Stations without a status URL are absent.
func (d *Directory) StatusEndpoints() map[string]domain.StatusEndpoint {
	endpoints := make(map[string]domain.StatusEndpoint)
	for _, s := range d.stations {
		if s.StatusURL == "" {
			continue
		}
		endpoints[s.ID] = domain.StatusEndpoint{
			StationID:   s.ID,
			BaseURL:     streamHost,
			StatusURL:   s.StatusURL,
			CoverArtURL: s.CoverArtURL,
		}
	}
	return endpoints
}
