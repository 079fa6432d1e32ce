// Package testvalidator implements loam.Validator and loam.Keypair with
// plain ed25519, for use by loam's own test suites and by driver
// implementations exercising the Store/Driver contract end to end. It
// intentionally omits the richer checks a production validator would
// apply (workspace naming conventions, author address checksums) since
// those belong to the capability loam consumes, not to loam itself.
package testvalidator

import (
	"crypto/ed25519"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/basincode/loam"
)

// Format is the document format identifier this validator handles.
const Format = "loamtest-1"

// MaxClockSkew bounds how far a document's timestamp may sit in the
// future relative to now before CheckTimestampIsOk rejects it.
const MaxClockSkew = 10 * 1_000_000 // 10s in microseconds

// Keypair is an ed25519 signing identity.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewKeypair generates a fresh random Keypair.
func NewKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Keypair{}, fmt.Errorf("testvalidator: generating keypair: %w", err)
	}
	return Keypair{pub: pub, priv: priv}, nil
}

// Author returns the "@"-prefixed base32 public key address.
func (k Keypair) Author() string {
	return "@" + encode(k.pub)
}

// Validator implements loam.Validator over ed25519 signatures.
type Validator struct{}

// New returns a ready-to-use Validator.
func New() Validator { return Validator{} }

func (Validator) Format() string { return Format }

// CheckWorkspaceIsValid accepts any workspace of the form "+name.suffix".
func (Validator) CheckWorkspaceIsValid(workspace string) error {
	if !strings.HasPrefix(workspace, "+") || !strings.Contains(workspace, ".") {
		return fmt.Errorf("testvalidator: workspace %q must look like \"+name.suffix\"", workspace)
	}
	return nil
}

// CheckTimestampIsOk rejects timestamps more than MaxClockSkew in the
// future, and a deleteAfter that does not strictly follow timestamp.
func (Validator) CheckTimestampIsOk(timestamp int64, deleteAfter *int64, nowMicros int64) error {
	if timestamp > nowMicros+MaxClockSkew {
		return fmt.Errorf("testvalidator: timestamp %d too far in the future (now=%d)", timestamp, nowMicros)
	}
	if deleteAfter != nil && *deleteAfter <= timestamp {
		return fmt.Errorf("testvalidator: deleteAfter %d must be after timestamp %d", *deleteAfter, timestamp)
	}
	return nil
}

// CheckDocumentIsValid verifies doc's hash, signature, and field
// well-formedness as of nowMicros.
func (Validator) CheckDocumentIsValid(doc loam.Document, nowMicros int64) error {
	if doc.Format != Format {
		return fmt.Errorf("testvalidator: unexpected format %q", doc.Format)
	}
	if doc.Path == "" {
		return fmt.Errorf("testvalidator: path must not be empty")
	}
	if !strings.HasPrefix(doc.Author, "@") {
		return fmt.Errorf("testvalidator: author %q missing \"@\" prefix", doc.Author)
	}
	if doc.ContentHash != loam.ContentHash(doc.Content) {
		return fmt.Errorf("testvalidator: contentHash does not match content")
	}
	v := New()
	if err := v.CheckTimestampIsOk(doc.Timestamp, doc.DeleteAfter, nowMicros); err != nil {
		return err
	}

	pub, err := decode(strings.TrimPrefix(doc.Author, "@"))
	if err != nil {
		return fmt.Errorf("testvalidator: decoding author: %w", err)
	}
	sig, err := decode(doc.Signature)
	if err != nil {
		return fmt.Errorf("testvalidator: decoding signature: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), signingBytes(doc), sig) {
		return fmt.Errorf("testvalidator: signature does not verify")
	}
	return nil
}

// SignDocument computes Signature over every other field of unsigned,
// using keypair's private key. unsigned.Author must already equal
// keypair.Author().
func (Validator) SignDocument(keypair loam.Keypair, unsigned loam.Document) (loam.Document, error) {
	kp, ok := keypair.(Keypair)
	if !ok {
		return loam.Document{}, fmt.Errorf("testvalidator: keypair is not a testvalidator.Keypair")
	}
	if unsigned.Author != kp.Author() {
		return loam.Document{}, fmt.Errorf("testvalidator: document author %q does not match keypair %q", unsigned.Author, kp.Author())
	}
	signed := unsigned
	signed.Signature = encode(ed25519.Sign(kp.priv, signingBytes(signed)))
	return signed, nil
}

// signingBytes assembles the deterministic byte sequence a signature
// covers: every field except Signature itself, in a fixed order.
func signingBytes(doc loam.Document) []byte {
	var deleteAfter string
	if doc.DeleteAfter != nil {
		deleteAfter = fmt.Sprint(*doc.DeleteAfter)
	}
	return []byte(strings.Join([]string{
		doc.Format, doc.Workspace, doc.Path, doc.Content, doc.ContentHash,
		doc.Author, fmt.Sprint(doc.Timestamp), deleteAfter,
	}, "\x00"))
}

func encode(b []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
}
