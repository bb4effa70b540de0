// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the Primal Radio player.
package domain

import (
	"time"
)

// Medium describes how a station is delivered.
type Medium string

const (
	// MediumAudioStream is a plain audio stream played by the audio output.
	MediumAudioStream Medium = "audio-stream"

	// MediumLiveVideo is a live video channel played by an embedded third-party player.
	MediumLiveVideo Medium = "live-video"
)

// Station represents one selectable entry of the station directory.
// Stations are compiled in and never mutated after creation.
type Station struct {
	// ID is the stable identifier of the station
	ID string `json:"id"`

	// Name is the display name
	Name string `json:"name"`

	// Medium tells whether the station is an audio stream or a live video channel
	Medium Medium `json:"medium"`

	// IsLive marks stations currently broadcasting live
	IsLive bool `json:"isLive"`

	// CurrentTrack is the static "current track" label shown before metadata arrives
	CurrentTrack string `json:"currentTrack"`

	// StreamURL is the audio stream (or embed) URL
	StreamURL string `json:"streamUrl,omitempty"`

	// PlaylistURL is the playlist file handed to external players
	PlaylistURL string `json:"playlistUrl,omitempty"`

	// StatusURL is the upstream JSON status endpoint
	StatusURL string `json:"statusUrl,omitempty"`

	// CoverArtURL is the conventional cover image used when the status API has none
	CoverArtURL string `json:"coverArtUrl,omitempty"`

	// Genre is an optional genre label
	Genre string `json:"genre,omitempty"`
}

// IsAudio returns true if the station is played through the audio output.
func (s Station) IsAudio() bool {
	return s.Medium == MediumAudioStream
}

// PlaylistLinks holds the external player links for a station.
// Winamp, VLC and iTunes all receive the same playlist file.
type PlaylistLinks struct {
	Winamp string `json:"winamp,omitempty"`
	VLC    string `json:"vlc,omitempty"`
	ITunes string `json:"itunes,omitempty"`
}

// StatusEndpoint is the per-station upstream status configuration used by the metadata poller.
type StatusEndpoint struct {
	StationID   string `json:"stationId"`
	BaseURL     string `json:"baseUrl"`
	StatusURL   string `json:"statusUrl"`
	CoverArtURL string `json:"coverArtUrl,omitempty"`
}

// ScheduleEntry is one row of the weekly show table.
// Start and End are 12-hour "H:MM AM/PM" labels in the station time zone.
// An End that is not after Start denotes a window crossing midnight.
type ScheduleEntry struct {
	Day   time.Weekday `yaml:"day" json:"day"`
	Show  string       `yaml:"show" json:"show"`
	Host  string       `yaml:"host" json:"host"`
	Start string       `yaml:"start" json:"start"`
	End   string       `yaml:"end" json:"end"`
}

// Show is the result of a schedule lookup.
type Show struct {
	Name string `yaml:"show" json:"show"`
	Host string `yaml:"host" json:"host"`
}

// TrackMetadata describes what is currently on air.
type TrackMetadata struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	AlbumArtURL string `json:"albumArt,omitempty"`
	Genre       string `json:"genre,omitempty"`
}

// StationMetadata is the normalized "now playing" record.
// It is replaced wholesale on every poll, never merged field by field.
type StationMetadata struct {
	StationID string        `json:"stationId"`
	Track     TrackMetadata `json:"track"`
	Show      Show          `json:"show"`
	Listeners int           `json:"listeners,omitempty"`
	Bitrate   string        `json:"bitrate,omitempty"`
	Format    string        `json:"format,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// SessionPhase is the state of the playback session state machine.
type SessionPhase int

const (
	// PhaseIdle means nothing is playing and no retry is pending
	PhaseIdle SessionPhase = iota

	// PhaseConnecting means a play attempt is in progress
	PhaseConnecting

	// PhasePlaying means the stream is playing
	PhasePlaying

	// PhaseReconnecting means a reconnect attempt is scheduled
	PhaseReconnecting

	// PhaseFailed means playback failed and no automatic retry will happen
	PhaseFailed
)

// String returns a human-readable representation of the phase.
func (p SessionPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhasePlaying:
		return "playing"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PlaybackState is a snapshot of the playback session.
type PlaybackState struct {
	// CurrentStation is the selected station (nil if none)
	CurrentStation *Station

	// IsPlaying is true while the output is playing
	IsPlaying bool

	// Volume is the volume level (0 to 100)
	Volume int

	// IsMuted indicates if audio is muted
	IsMuted bool

	// ReconnectAttempt is the number of reconnect attempts made in the current cycle
	ReconnectAttempt int

	// Phase is the state machine phase
	Phase SessionPhase

	// NextRetryAt is the deadline of the pending reconnect attempt (zero if none)
	NextRetryAt time.Time
}

// StatusPayload is the decoded body of an upstream status endpoint.
type StatusPayload struct {
	NowPlaying  string
	CoverArt    string
	Connections *int
	Bitrate     *int
	Formats     []string
}
