package loam

import (
	"crypto/sha256"
	"encoding/base32"
)

// Document is an immutable, signed record addressed by (Path, Author)
// within a Workspace. A Document is never mutated in place: a later
// write to the same slot produces a new Document value that supersedes
// it per the last-write-wins discipline (see Store.IngestDocument).
type Document struct {
	// Format selects the Validator that accepted this document.
	Format string

	// Workspace is the workspace address this document belongs to.
	Workspace string

	// Path is the hierarchical identifier within the workspace.
	Path string

	// Content is the document body. The empty string is a tombstone —
	// an ordinary value that shadows an earlier, non-empty document.
	Content string

	// ContentHash is the base32 SHA-256 digest of Content, bound
	// cryptographically by Signature.
	ContentHash string

	// Author is the public-key identifier of the document's author.
	Author string

	// Timestamp is microseconds since the Unix epoch.
	Timestamp int64

	// DeleteAfter, if non-nil, is the microsecond instant after which
	// this document is expired (see IsLive).
	DeleteAfter *int64

	// Signature is computed by the Validator over every other field.
	Signature string
}

// ContentHash computes the base32 (no padding) SHA-256 digest of content,
// the algorithm Document.ContentHash is required to use.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
}

// IsLive reports whether the document has not expired as of nowMicros.
// A document with DeleteAfter == nil is always live.
func (d Document) IsLive(nowMicros int64) bool {
	return d.DeleteAfter == nil || nowMicros <= *d.DeleteAfter
}

// Slot identifies the (Path, Author) coordinate a Document occupies.
// At most one Document exists per Slot in a Driver.
type Slot struct {
	Path   string
	Author string
}

// Slot returns the slot this document occupies.
func (d Document) Slot() Slot {
	return Slot{Path: d.Path, Author: d.Author}
}

// rankKey is the (timestamp, signature) pair used for last-write-wins
// comparisons and for the history sort ordering's tiebreak.
type rankKey struct {
	timestamp int64
	signature string
}

func (d Document) rankKey() rankKey {
	return rankKey{timestamp: d.Timestamp, signature: d.Signature}
}

// supersedes reports whether d should replace existing at the same slot,
// i.e. whether (d.Timestamp, d.Signature) is strictly greater than
// (existing.Timestamp, existing.Signature) in lexicographic order.
func (d Document) supersedes(existing Document) bool {
	a, b := d.rankKey(), existing.rankKey()
	if a.timestamp != b.timestamp {
		return a.timestamp > b.timestamp
	}
	return a.signature > b.signature
}
