package models

// ItemState represents the outcome of the most recent refresh pass for an item
type ItemState string

const (
	StatePending  ItemState = "pending"    // Discovered, not yet evaluated
	StateUpToDate ItemState = "up_to_date" // Valid record exists, no work needed
	StateIgnored  ItemState = "ignored"    // Known to have no trailer
	StateSkipped  ItemState = "skipped"    // No identifier could be extracted
	StateFailed   ItemState = "failed"     // Transient failures exhausted this pass
)

// Source represents which catalog produced a trailer reference
type Source string

const (
	SourceIMDb Source = "imdb"
	SourceTMDB Source = "tmdb"
)

// MediaType represents the type of media (movie or tv show)
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// CandidateKind classifies a catalog candidate by what the catalog calls it
type CandidateKind string

const (
	KindTrailer CandidateKind = "Trailer"
	KindClip    CandidateKind = "Clip"
	KindOther   CandidateKind = "Other"
)

// CandidateScope distinguishes series-level candidates from season-specific ones
type CandidateScope string

const (
	ScopeSeries CandidateScope = "series"
	ScopeSeason CandidateScope = "season"
)

// OutputMode selects how a resolved reference is materialized on disk
type OutputMode string

const (
	ModeLink     OutputMode = "link"     // .strm reference file
	ModeDownload OutputMode = "download" // download the video itself
)

// DefaultLanguage is the language primary-catalog resolution always yields
// and the fallback for language-catalog lookups.
const DefaultLanguage = "en"
