package models

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRecordExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	// Valid until the future
	record := TrailerRecord{Key: "tt1", ResolvedAt: now.Add(-time.Hour), ExpiresAt: &future}
	if record.Expired(now) {
		t.Error("Record expiring in an hour should not be expired")
	}

	// Already past
	record.ExpiresAt = &past
	if !record.Expired(now) {
		t.Error("Record that expired an hour ago should be expired")
	}

	// The boundary instant counts as expired
	boundary := now
	record.ExpiresAt = &boundary
	if !record.Expired(now) {
		t.Error("Record expiring exactly now should be treated as expired")
	}

	// No expiry means durable
	record.ExpiresAt = nil
	if record.Expired(now) {
		t.Error("Record without expiry should never expire")
	}
}

func TestTransientClassification(t *testing.T) {
	err := Transient("imdb gallery", errors.New("connection reset"))
	if !IsTransient(err) {
		t.Error("Transient wrapper should classify as transient")
	}

	// Classification survives further wrapping
	wrapped := fmt.Errorf("resolve tt1234567: %w", err)
	if !IsTransient(wrapped) {
		t.Error("Wrapped transient error should still classify as transient")
	}

	if IsTransient(ErrNoTrailer) {
		t.Error("Not-found must never classify as transient")
	}
	if IsTransient(ErrUnavailable) {
		t.Error("Unavailable must never classify as transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not classify as transient")
	}
}
