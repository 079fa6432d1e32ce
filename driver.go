package loam

import "context"

// CloseOption configures Driver.Close and Store.Close.
type CloseOption struct {
	// Delete, if true, also destroys the backing store (file, in-memory
	// map) instead of merely releasing handles to it.
	Delete bool
}

// Driver is the persistence plugin contract. A Driver makes no policy
// decisions: it never validates documents, never rewrites timestamps,
// never emits write events, and never decides accept-vs-ignore — all of
// that is Store's job. A Driver owns exactly one workspace's documents.
type Driver interface {
	// Begin performs one-time initialization (schema creation, schema
	// version checks). It takes no clock, so it does not sweep expired
	// documents. It is called exactly once, by Store construction.
	Begin(ctx context.Context, workspace string) error

	// Authors returns the sorted, deduplicated set of authors with at
	// least one live (non-expired) document, as of nowMicros.
	Authors(ctx context.Context, nowMicros int64) ([]string, error)

	// PathQuery returns sorted, deduplicated, non-expired paths matching
	// query. Limit applies to the number of paths; LimitBytes is ignored.
	PathQuery(ctx context.Context, query Query, nowMicros int64) ([]string, error)

	// DocumentQuery returns non-expired documents matching query, sorted
	// in history order, with Limit/LimitBytes applied.
	DocumentQuery(ctx context.Context, query Query, nowMicros int64) ([]Document, error)

	// UpsertDocument unconditionally writes doc at its (Path, Author)
	// slot, replacing whatever was there. The returned Document is
	// immutable and safe to share across goroutines.
	UpsertDocument(ctx context.Context, doc Document) (Document, error)

	// RemoveExpiredDocs deletes every document with DeleteAfter set and
	// strictly less than nowMicros, and returns how many were removed.
	RemoveExpiredDocs(ctx context.Context, nowMicros int64) (int, error)

	// SetConfig, GetConfig, DeleteConfig, and DeleteAllConfig provide an
	// untyped string-to-string store for per-workspace metadata (e.g.
	// schema version). GetConfig's second return is false if key is unset.
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, bool, error)
	DeleteConfig(ctx context.Context, key string) error
	DeleteAllConfig(ctx context.Context) error

	// Close releases the driver's handles. If opt.Delete, it also
	// destroys the backing store.
	Close(ctx context.Context, opt CloseOption) error
}
