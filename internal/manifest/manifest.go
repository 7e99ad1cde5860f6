// Package manifest persists the ordered page fingerprint list of a Backup Unit.
//
// The file is a flat sequence of 8-byte little-endian records. Slot 0 holds
// the meta-fingerprint, the hash of the raw bytes of slots 1..N; slot i holds
// the fingerprint of database page i as of the last successful backup.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

var (
	// ErrNotFound is returned by LoadStrict when no manifest exists.
	ErrNotFound = errors.New("manifest not found")

	// ErrTruncated is returned by LoadStrict when the file length is not a
	// whole number of records.
	ErrTruncated = errors.New("manifest has a partial record")

	// ErrMetaMismatch is returned by Verify when slot 0 does not match the
	// recomputed meta-fingerprint.
	ErrMetaMismatch = errors.New("manifest meta-fingerprint mismatch")
)

// List is the in-memory manifest. Index 0 is the meta slot.
type List []fingerprint.Fingerprint

// New returns a list holding only the placeholder meta slot.
func New() List {
	return List{0}
}

// Pages returns the number of page slots (excluding the meta slot).
func (l List) Pages() int {
	if len(l) == 0 {
		return 0
	}
	return len(l) - 1
}

// Meta returns slot 0, or zero for an empty list.
func (l List) Meta() fingerprint.Fingerprint {
	if len(l) == 0 {
		return 0
	}
	return l[0]
}

// Page returns the fingerprint of page pgno (1-based).
func (l List) Page(pgno int) (fingerprint.Fingerprint, bool) {
	if pgno < 1 || pgno >= len(l) {
		return 0, false
	}
	return l[pgno], true
}

// ComputeMeta hashes the encoded bytes of slots 1..N.
func (l List) ComputeMeta(h fingerprint.HashFunc) fingerprint.Fingerprint {
	if len(l) <= 1 {
		return fingerprint.Of(h, nil)
	}
	return fingerprint.Of(h, fingerprint.Encode(l[1:]))
}

// Seal stores the recomputed meta-fingerprint in slot 0.
func (l List) Seal(h fingerprint.HashFunc) {
	if len(l) == 0 {
		return
	}
	l[0] = l.ComputeMeta(h)
}

// Verify checks slot 0 against the recomputed meta-fingerprint.
func (l List) Verify(h fingerprint.HashFunc) error {
	if len(l) == 0 {
		return ErrNotFound
	}
	if got, want := l[0], l.ComputeMeta(h); got != want {
		return fmt.Errorf("%w: stored %s, computed %s", ErrMetaMismatch, got, want)
	}
	return nil
}

// Load reads the manifest of u. A missing file yields an empty list. A
// trailing partial record is dropped.
func Load(u workspace.Unit) (List, error) {
	l, _, err := read(u)
	if errors.Is(err, os.ErrNotExist) {
		return List{}, nil
	}
	return l, err
}

// LoadStrict reads the manifest of u and rejects a missing file or any
// trailing partial record.
func LoadStrict(u workspace.Unit) (List, error) {
	l, rest, err := read(u)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rest != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, rest)
	}
	if len(l) == 0 {
		return nil, ErrNotFound
	}
	return l, nil
}

func read(u workspace.Unit) (List, int, error) {
	data, err := os.ReadFile(u.ManifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, os.ErrNotExist
		}
		return nil, 0, fmt.Errorf("read manifest %s: %w", u.ManifestPath(), err)
	}
	fps, rest := fingerprint.Decode(data)
	return List(fps), rest, nil
}

// Save overwrites the manifest of u with l. The file is rewritten in place;
// a crash mid-write can leave a short manifest, which the next backup repairs
// and restore rejects.
func Save(u workspace.Unit, l List) error {
	if err := os.WriteFile(u.ManifestPath(), fingerprint.Encode(l), 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", u.ManifestPath(), err)
	}
	return nil
}

// Clear deletes the manifest of u if present.
func Clear(u workspace.Unit) error {
	if err := workspace.RemoveIfExists(u.ManifestPath()); err != nil {
		return fmt.Errorf("remove manifest %s: %w", u.ManifestPath(), err)
	}
	return nil
}
