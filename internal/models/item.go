package models

import "time"

// MediaItem is one recognized media folder. Items are derived fresh from the
// library on every scan; the copy kept in the index only mirrors the outcome
// of the last pass for reporting.
type MediaItem struct {
	Key    string `boltholdKey:"Key"` // IMDb ID, e.g. tt1234567
	Path   string // Folder the trailer output belongs under
	Series bool   // True when the item was lifted from a season folder

	// Last pass outcome
	State     ItemState `boltholdIndex:"State"`
	LastPass  time.Time
	LastError string
}
