package loam

// Validator is the cryptographic capability the store consumes but never
// implements: it checks document/workspace well-formedness and signs
// unsigned documents on behalf of a local author. A Store treats every
// Validator as a black box and never inspects keypair material.
//
// Format returns the document-format identifier this Validator handles;
// a Store dispatches to a Validator by matching Document.Format against it.
type Validator interface {
	Format() string

	// CheckDocumentIsValid verifies doc's signature, hash, and field
	// well-formedness as of nowMicros.
	CheckDocumentIsValid(doc Document, nowMicros int64) error

	// CheckWorkspaceIsValid verifies workspace is a well-formed address
	// this validator's signature scheme can operate over.
	CheckWorkspaceIsValid(workspace string) error

	// CheckTimestampIsOk verifies a caller-supplied timestamp (and,
	// optionally, deleteAfter) falls within acceptable bounds of
	// nowMicros, per whatever clock-skew policy the validator enforces.
	CheckTimestampIsOk(timestamp int64, deleteAfter *int64, nowMicros int64) error

	// SignDocument computes Signature (and any other validator-owned
	// fields) over an otherwise-complete, unsigned Document.
	SignDocument(keypair Keypair, unsigned Document) (Document, error)
}

// Keypair is an opaque authoring identity handed to Validator.SignDocument.
// loam never inspects it; it exists purely to thread a caller's signing
// material through Store.Set without the store needing to know its shape.
type Keypair interface {
	// Author returns the public-key address this keypair signs as.
	Author() string
}
