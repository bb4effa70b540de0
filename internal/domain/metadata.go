package domain

// MetadataSource tells whether a metadata record came from the station or was synthesized.
type MetadataSource int

const (
	// SourceLive means the record was built from the station's status endpoint
	SourceLive MetadataSource = iota

	// SourceFallback means the record was synthesized from the placeholder rotation
	SourceFallback
)

// String returns a human-readable representation of the source.
func (s MetadataSource) String() string {
	if s == SourceLive {
		return "live"
	}
	return "fallback"
}

// FallbackReason explains why a fallback record was produced.
type FallbackReason string

const (
	// FallbackNone is used for live records
	FallbackNone FallbackReason = ""

	// FallbackNoConfig means the station has no status endpoint configured
	FallbackNoConfig FallbackReason = "no_config"

	// FallbackFetchFailed means the request could not be completed
	FallbackFetchFailed FallbackReason = "fetch_failed"

	// FallbackBadStatus means the endpoint answered with a non-OK status
	FallbackBadStatus FallbackReason = "bad_status"

	// FallbackDecodeFailed means the body was not valid status JSON
	FallbackDecodeFailed FallbackReason = "decode_failed"
)

// MetadataResult is the tagged outcome of one poll cycle.
// Live and fallback records render identically; the tag lets callers tell them apart.
type MetadataResult struct {
	Source   MetadataSource
	Reason   FallbackReason
	Metadata StationMetadata
}

// IsLive returns true if the record came from the station.
func (r MetadataResult) IsLive() bool {
	return r.Source == SourceLive
}

// LiveResult wraps live metadata.
func LiveResult(metadata StationMetadata) MetadataResult {
	return MetadataResult{Source: SourceLive, Metadata: metadata}
}

// FallbackResult wraps synthesized metadata with the reason it was needed.
func FallbackResult(reason FallbackReason, metadata StationMetadata) MetadataResult {
	return MetadataResult{Source: SourceFallback, Reason: reason, Metadata: metadata}
}
