// Package storage holds what the SQLite and PostgreSQL backends share.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/radquest/radquest/internal/domain"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSubmission is returned when a submission id was already stored for the player
	ErrDuplicateSubmission = errors.New("duplicate submission")
)

// Attempt listing limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit maps a requested list size into [1, MaxListLimit]
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}

// EncodeVerdict serializes a verdict for a JSON column; nil stays nil
func EncodeVerdict(v *domain.Verdict) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal verdict: %w", err)
	}
	return data, nil
}

// DecodeVerdict parses a JSON column; empty input yields nil
func DecodeVerdict(data []byte) (*domain.Verdict, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var v domain.Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal verdict: %w", err)
	}
	return &v, nil
}
