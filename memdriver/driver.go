// Package memdriver implements loam.Driver entirely in process memory: a
// single map keyed by (path, author) slot, guarded by a single mutex.
// Every query scans the whole map, including one that names a single
// path. It is the default driver,
// useful for tests and for workspaces that don't need to survive a
// process restart.
package memdriver

import (
	"context"
	"sort"
	"sync"

	"github.com/basincode/loam"
)

func init() {
	loam.RegisterDriver("memory", func(cfg loam.DriverConfig) (loam.Driver, error) {
		return New(), nil
	})
}

// Driver is an in-memory loam.Driver. The zero value is not usable;
// construct with New.
type Driver struct {
	mu        sync.RWMutex
	workspace string
	docs      map[loam.Slot]loam.Document
	config    map[string]string
}

// New returns an empty, ready-to-Begin Driver.
func New() *Driver {
	return &Driver{
		docs:   make(map[loam.Slot]loam.Document),
		config: make(map[string]string),
	}
}

// Begin records the workspace this driver serves. It performs no I/O.
func (d *Driver) Begin(ctx context.Context, workspace string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workspace = workspace
	return nil
}

// Authors returns the sorted, deduplicated authors with a live document.
func (d *Driver) Authors(ctx context.Context, nowMicros int64) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, doc := range d.docs {
		if !doc.IsLive(nowMicros) {
			continue
		}
		seen[doc.Author] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// PathQuery returns the sorted, deduplicated paths among candidate
// documents matching query.
func (d *Driver) PathQuery(ctx context.Context, query loam.Query, nowMicros int64) ([]string, error) {
	d.mu.RLock()
	candidates := d.candidatesLocked(query, nowMicros)
	d.mu.RUnlock()

	seen := make(map[string]struct{}, len(candidates))
	paths := make([]string, 0, len(candidates))
	for _, doc := range candidates {
		if _, ok := seen[doc.Path]; ok {
			continue
		}
		seen[doc.Path] = struct{}{}
		paths = append(paths, doc.Path)
	}
	sort.Strings(paths)
	if query.Limit > 0 && len(paths) > query.Limit {
		paths = paths[:query.Limit]
	}
	return paths, nil
}

// DocumentQuery returns documents matching query, in history order, with
// Limit/LimitBytes applied.
func (d *Driver) DocumentQuery(ctx context.Context, query loam.Query, nowMicros int64) ([]loam.Document, error) {
	d.mu.RLock()
	candidates := d.candidatesLocked(query, nowMicros)
	d.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		return loam.HistoryOrder(candidates[i], candidates[j]) < 0
	})
	return query.LimitBytesCut(candidates), nil
}

// candidatesLocked builds the set of live documents matching query's
// selectors, collapsed to one winner per path when History is
// HistoryLatest. Callers must hold d.mu.
func (d *Driver) candidatesLocked(query loam.Query, nowMicros int64) []loam.Document {
	if query.History != loam.HistoryAll {
		bestByPath := make(map[string]loam.Document)
		for _, doc := range d.docs {
			if !doc.IsLive(nowMicros) {
				continue
			}
			cur, ok := bestByPath[doc.Path]
			if !ok || loam.HistoryOrder(doc, cur) < 0 {
				bestByPath[doc.Path] = doc
			}
		}
		out := make([]loam.Document, 0, len(bestByPath))
		for _, doc := range bestByPath {
			if query.Matches(doc) {
				out = append(out, doc)
			}
		}
		return out
	}

	out := make([]loam.Document, 0, len(d.docs))
	for _, doc := range d.docs {
		if !doc.IsLive(nowMicros) {
			continue
		}
		if query.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// UpsertDocument unconditionally writes doc at its slot.
func (d *Driver) UpsertDocument(ctx context.Context, doc loam.Document) (loam.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[doc.Slot()] = doc
	return doc, nil
}

// RemoveExpiredDocs deletes every document whose DeleteAfter has passed.
func (d *Driver) RemoveExpiredDocs(ctx context.Context, nowMicros int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for slot, doc := range d.docs {
		if !doc.IsLive(nowMicros) {
			delete(d.docs, slot)
			removed++
		}
	}
	return removed, nil
}

// SetConfig stores a workspace-scoped key/value pair.
func (d *Driver) SetConfig(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config[key] = value
	return nil
}

// GetConfig retrieves a workspace-scoped key.
func (d *Driver) GetConfig(ctx context.Context, key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.config[key]
	return v, ok, nil
}

// DeleteConfig removes a single key.
func (d *Driver) DeleteConfig(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.config, key)
	return nil
}

// DeleteAllConfig clears the config map.
func (d *Driver) DeleteAllConfig(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = make(map[string]string)
	return nil
}

// Close releases the driver's maps. opt.Delete makes no difference: the
// maps are dropped either way, and nothing survives the process.
func (d *Driver) Close(ctx context.Context, opt loam.CloseOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs = nil
	d.config = nil
	return nil
}
