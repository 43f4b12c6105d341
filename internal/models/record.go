package models

import "time"

// TrailerRecord is the current knowledge about one item's trailer: which
// catalog it came from, where the playable reference lives, and until when
// the access link is valid.
type TrailerRecord struct {
	Key        string     `json:"key"`
	Source     Source     `json:"source"`
	URL        string     `json:"url"`
	Language   string     `json:"language"` // Language actually obtained, not necessarily the one requested
	Path       string     `json:"path"`     // Item folder at resolution time
	ResolvedAt time.Time  `json:"resolved_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"` // nil means the link never expires
}

// Expired reports whether the access link is no longer valid at now.
// The boundary instant counts as expired; records without an expiry are
// durable and never expire.
func (r TrailerRecord) Expired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// IgnoreEntry marks an item as having no retrievable trailer, so passes stop
// asking the catalogs about it. Entries are only removed manually or by a
// forced run that finds a trailer after all.
type IgnoreEntry struct {
	Key         string    `json:"key"`
	Path        string    `json:"path"`
	Reason      string    `json:"reason"`
	LastChecked time.Time `json:"last_checked"`
}

// Candidate is one trailer candidate returned by a catalog lookup.
type Candidate struct {
	Kind     CandidateKind
	Scope    CandidateScope
	Handle   string // YouTube URL (TMDB) or video page URL (IMDb)
	Name     string
	Official bool
}
