// Package sqlitedriver implements loam.Driver on top of a single SQLite
// file via modernc.org/sqlite, a pure-Go (cgo-free) driver. One table
// holds documents, one holds config.
package sqlitedriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/basincode/loam"
)

func init() {
	loam.RegisterDriver("sqlite", func(cfg loam.DriverConfig) (loam.Driver, error) {
		return Open(cfg.SQLitePath)
	})
}

// schemaVersion is bumped whenever the table layout changes in a way
// that isn't backward compatible. Begin refuses to operate against a
// database stamped with any other version, rather than guessing at a
// migration.
const schemaVersion = 1

// reservedConfigKeys are rows the driver itself stamps into config
// during Begin. They are excluded from DeleteAllConfig so a caller
// clearing its own workspace-local metadata can't accidentally erase
// the schema/workspace stamp out from under the driver.
var reservedConfigKeys = []string{"schemaVersion", "workspace"}

const schema = `
CREATE TABLE IF NOT EXISTS docs (
	path         TEXT NOT NULL,
	author       TEXT NOT NULL,
	format       TEXT NOT NULL,
	workspace    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content      BLOB NOT NULL,
	timestamp    INTEGER NOT NULL,
	delete_after INTEGER,
	signature    TEXT NOT NULL,
	PRIMARY KEY (path, author)
);

CREATE INDEX IF NOT EXISTS docs_path_idx ON docs(path);
CREATE INDEX IF NOT EXISTS docs_delete_after_idx ON docs(delete_after);

CREATE TABLE IF NOT EXISTS config (
	key     TEXT PRIMARY KEY,
	content TEXT NOT NULL
);
`

// Driver is a loam.Driver backed by a SQLite file.
type Driver struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path. The
// returned Driver still requires Begin to be called, as every
// loam.Driver does, before use.
func Open(path string) (*Driver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitedriver: opening %q: %w", path, err)
	}
	// A file-backed SQLite connection serializes writes at the engine
	// level; a single pooled connection avoids SQLITE_BUSY from
	// concurrent writers inside this process (loam.Store's own mutex
	// already serializes the interesting critical section, but Store
	// read operations can still run concurrently with each other).
	db.SetMaxOpenConns(1)
	return &Driver{db: db}, nil
}

// Begin creates the schema if absent and checks (or stamps) the schema
// version and workspace. It does not sweep expired documents; see
// sweepLocked.
func (d *Driver) Begin(ctx context.Context, workspace string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlitedriver: creating schema: %w", err)
	}

	var versionStr string
	err := d.db.QueryRowContext(ctx, `SELECT content FROM config WHERE key = 'schemaVersion'`).Scan(&versionStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := d.db.ExecContext(ctx, `INSERT INTO config(key, content) VALUES ('schemaVersion', ?)`, fmt.Sprint(schemaVersion)); err != nil {
			return fmt.Errorf("sqlitedriver: stamping schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("sqlitedriver: reading schema version: %w", err)
	default:
		if versionStr != fmt.Sprint(schemaVersion) {
			return fmt.Errorf("sqlitedriver: database has schema version %s, this build requires %d; refusing to open", versionStr, schemaVersion)
		}
	}

	var workspaceStr string
	err = d.db.QueryRowContext(ctx, `SELECT content FROM config WHERE key = 'workspace'`).Scan(&workspaceStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := d.db.ExecContext(ctx, `INSERT INTO config(key, content) VALUES ('workspace', ?)`, workspace); err != nil {
			return fmt.Errorf("sqlitedriver: stamping workspace: %w", err)
		}
	case err != nil:
		return fmt.Errorf("sqlitedriver: reading workspace: %w", err)
	default:
		if workspaceStr != workspace {
			return fmt.Errorf("sqlitedriver: database belongs to workspace %q, not %q", workspaceStr, workspace)
		}
	}

	return nil
}

// sweepLocked deletes every document whose DeleteAfter has passed
// nowMicros. Begin does not call this itself: a Driver's Begin has no
// clock of its own. Queries filter expired rows out at read time; rows
// are deleted only when RemoveExpiredDocs (Store.ExpireNow) runs.
func (d *Driver) sweepLocked(ctx context.Context, nowMicros int64) (int, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM docs WHERE delete_after IS NOT NULL AND delete_after < ?`, nowMicros)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Authors returns the sorted, deduplicated authors with a live document.
func (d *Driver) Authors(ctx context.Context, nowMicros int64) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT author FROM docs
		WHERE delete_after IS NULL OR delete_after >= ?
		ORDER BY author ASC`, nowMicros)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var author string
		if err := rows.Scan(&author); err != nil {
			return nil, err
		}
		out = append(out, author)
	}
	return out, rows.Err()
}

// PathQuery returns the sorted, deduplicated paths among candidates.
func (d *Driver) PathQuery(ctx context.Context, query loam.Query, nowMicros int64) ([]string, error) {
	d.mu.Lock()
	candidates, err := d.candidatesLocked(ctx, query, nowMicros)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	var paths []string
	for _, doc := range candidates {
		if _, ok := seen[doc.Path]; ok {
			continue
		}
		seen[doc.Path] = struct{}{}
		paths = append(paths, doc.Path)
	}
	sortStrings(paths)
	if query.Limit > 0 && len(paths) > query.Limit {
		paths = paths[:query.Limit]
	}
	return paths, nil
}

// DocumentQuery returns documents matching query in history order, with
// Limit/LimitBytes applied.
func (d *Driver) DocumentQuery(ctx context.Context, query loam.Query, nowMicros int64) ([]loam.Document, error) {
	d.mu.Lock()
	candidates, err := d.candidatesLocked(ctx, query, nowMicros)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sortDocuments(candidates)
	return query.LimitBytesCut(candidates), nil
}

// candidatesLocked loads every live document the SQL layer can cheaply
// filter by (path/prefix, plus author when History is HistoryAll, so the
// latest-per-path fold sees every author's version), then applies the rest of query's
// selectors (content size, timestamp bounds, continueAfter) in Go via
// Query.Matches — mirroring the Driver contract's division of labor
// without hand-rolling the same predicate twice in SQL and Go. Callers
// must hold d.mu.
func (d *Driver) candidatesLocked(ctx context.Context, query loam.Query, nowMicros int64) ([]loam.Document, error) {
	var b strings.Builder
	b.WriteString(`SELECT path, author, format, workspace, content, content_hash, timestamp, delete_after, signature FROM docs WHERE (delete_after IS NULL OR delete_after >= ?)`)
	args := []any{nowMicros}

	if query.Path != nil {
		b.WriteString(` AND path = ?`)
		args = append(args, *query.Path)
	}
	if query.PathPrefix != nil {
		b.WriteString(` AND path LIKE ? ESCAPE '\'`)
		args = append(args, likePrefix(*query.PathPrefix))
	}
	if query.Author != nil && query.History == loam.HistoryAll {
		b.WriteString(` AND author = ?`)
		args = append(args, *query.Author)
	}

	rows, err := d.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []loam.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if query.History != loam.HistoryAll {
		bestByPath := make(map[string]loam.Document, len(all))
		for _, doc := range all {
			cur, ok := bestByPath[doc.Path]
			if !ok || loam.HistoryOrder(doc, cur) < 0 {
				bestByPath[doc.Path] = doc
			}
		}
		all = all[:0]
		for _, doc := range bestByPath {
			all = append(all, doc)
		}
	}

	out := all[:0]
	for _, doc := range all {
		if query.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func scanDocument(rows *sql.Rows) (loam.Document, error) {
	var (
		doc         loam.Document
		deleteAfter sql.NullInt64
	)
	if err := rows.Scan(&doc.Path, &doc.Author, &doc.Format, &doc.Workspace, &doc.Content, &doc.ContentHash, &doc.Timestamp, &deleteAfter, &doc.Signature); err != nil {
		return loam.Document{}, err
	}
	if deleteAfter.Valid {
		v := deleteAfter.Int64
		doc.DeleteAfter = &v
	}
	return doc, nil
}

// likePrefix escapes SQL LIKE metacharacters in prefix and appends the
// wildcard suffix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// UpsertDocument unconditionally writes doc at its (path, author) slot.
func (d *Driver) UpsertDocument(ctx context.Context, doc loam.Document) (loam.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var deleteAfter any
	if doc.DeleteAfter != nil {
		deleteAfter = *doc.DeleteAfter
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO docs (path, author, format, workspace, content_hash, content, timestamp, delete_after, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, author) DO UPDATE SET
			format = excluded.format,
			workspace = excluded.workspace,
			content = excluded.content,
			content_hash = excluded.content_hash,
			timestamp = excluded.timestamp,
			delete_after = excluded.delete_after,
			signature = excluded.signature
	`, doc.Path, doc.Author, doc.Format, doc.Workspace, doc.ContentHash, doc.Content, doc.Timestamp, deleteAfter, doc.Signature)
	if err != nil {
		return loam.Document{}, err
	}
	return doc, nil
}

// RemoveExpiredDocs deletes every document whose DeleteAfter has passed.
func (d *Driver) RemoveExpiredDocs(ctx context.Context, nowMicros int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked(ctx, nowMicros)
}

// SetConfig stores a workspace-scoped key/value pair.
func (d *Driver) SetConfig(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO config(key, content) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content`, key, value)
	return err
}

// GetConfig retrieves a workspace-scoped key.
func (d *Driver) GetConfig(ctx context.Context, key string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var value string
	err := d.db.QueryRowContext(ctx, `SELECT content FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// DeleteConfig removes a single key.
func (d *Driver) DeleteConfig(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	return err
}

// DeleteAllConfig clears every caller-set config key, leaving the
// driver's own schemaVersion/workspace stamp in place.
func (d *Driver) DeleteAllConfig(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.ExecContext(ctx, `DELETE FROM config WHERE key NOT IN (?, ?)`, reservedConfigKeys[0], reservedConfigKeys[1])
	return err
}

// Close closes the database handle. If opt.Delete, every row of the
// document and config tables is deleted first, including the
// schemaVersion and workspace stamp, so a reopen of the same path starts as a fresh
// database (the file itself is left in place; removing it is a
// filesystem decision outside the Driver contract).
func (d *Driver) Close(ctx context.Context, opt loam.CloseOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if opt.Delete {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM docs`); err != nil {
			return fmt.Errorf("sqlitedriver: deleting documents: %w", err)
		}
		if _, err := d.db.ExecContext(ctx, `DELETE FROM config`); err != nil {
			return fmt.Errorf("sqlitedriver: deleting config: %w", err)
		}
	}
	return d.db.Close()
}
