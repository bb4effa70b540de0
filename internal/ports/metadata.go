package ports

import (
	"context"
	"time"

	"github.com/primalradio/primalradio/internal/domain"
)

// StatusFetcher queries a station's upstream JSON status endpoint.
type StatusFetcher interface {
	// Fetch issues a GET against url and decodes the body.
	// Non-OK responses return *domain.StatusError; undecodable bodies return *domain.DecodeError.
	Fetch(ctx context.Context, url string) (domain.StatusPayload, error)
}

// ShowResolver maps a point in time to the scheduled show.
type ShowResolver interface {
	CurrentShow(now time.Time) domain.Show
}

// StreamResolver maps a station to its stream URL.
type StreamResolver interface {
	StreamURLFor(station domain.Station) string
}

// MetadataProvider is the read side of the metadata poller used by display surfaces.
type MetadataProvider interface {
	// Subscribe registers fn and calls it with the current value before returning.
	// The returned function removes the subscription; calling it twice is harmless.
	Subscribe(fn func(domain.StationMetadata)) (unsubscribe func())

	// CurrentMetadata returns the last computed record.
	CurrentMetadata() domain.StationMetadata

	// LastResult returns the last record tagged with its source.
	LastResult() domain.MetadataResult

	// SetCurrentStation switches the polled station and refreshes immediately.
	SetCurrentStation(ctx context.Context, stationID string)
}
