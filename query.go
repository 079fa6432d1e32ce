package loam

import "strings"

// History selects how many versions per path a Query returns.
type History string

const (
	// HistoryLatest keeps only the winning document per path (the
	// default — see CleanUp).
	HistoryLatest History = "latest"

	// HistoryAll returns every live version of every matching path.
	HistoryAll History = "all"
)

// Cursor is a reserved pagination token. loam implements it as a strict
// "greater than" bound under history order: a document is included only
// if it sorts strictly after Cursor. The zero Cursor matches everything.
type Cursor struct {
	Path      string
	Timestamp int64
	Signature string
	set       bool
}

// after reports whether d sorts strictly after the cursor in history order.
func (c Cursor) after(d Document) bool {
	if !c.set && c.Path == "" && c.Timestamp == 0 && c.Signature == "" {
		return true
	}
	if d.Path != c.Path {
		return d.Path > c.Path
	}
	if d.Timestamp != c.Timestamp {
		return d.Timestamp < c.Timestamp // history order is timestamp DESC
	}
	return d.Signature < c.Signature
}

// Query is a sparse set of selectors; an unset (nil/zero) selector does
// not constrain the result. Build one with struct literals or the With*
// helpers, then pass it to Store.Documents/Paths/Contents.
type Query struct {
	Path       *string
	PathPrefix *string

	Timestamp   *int64
	TimestampGt *int64
	TimestampLt *int64

	Author *string

	ContentSize   *int
	ContentSizeGt *int
	ContentSizeLt *int

	// History selects latest-per-path or all-versions. The zero value
	// is treated as HistoryLatest once CleanUp has run.
	History History

	Limit      int
	LimitBytes int64

	ContinueAfter Cursor
}

// CleanUp canonicalizes q: it applies the History default and detects
// selector combinations that can never match anything (e.g. an exact
// Path inconsistent with PathPrefix). ok=false means "the result is
// provably empty" — callers may skip the driver call entirely.
func (q Query) CleanUp() (cleaned Query, ok bool) {
	cleaned = q
	if cleaned.History == "" {
		cleaned.History = HistoryLatest
	}

	if cleaned.Path != nil && cleaned.PathPrefix != nil {
		if !strings.HasPrefix(*cleaned.Path, *cleaned.PathPrefix) {
			return cleaned, false
		}
	}
	if cleaned.Timestamp != nil {
		if cleaned.TimestampGt != nil && *cleaned.Timestamp <= *cleaned.TimestampGt {
			return cleaned, false
		}
		if cleaned.TimestampLt != nil && *cleaned.Timestamp >= *cleaned.TimestampLt {
			return cleaned, false
		}
	}
	if cleaned.TimestampGt != nil && cleaned.TimestampLt != nil && *cleaned.TimestampGt >= *cleaned.TimestampLt {
		return cleaned, false
	}
	if cleaned.ContentSize != nil {
		if cleaned.ContentSizeGt != nil && *cleaned.ContentSize <= *cleaned.ContentSizeGt {
			return cleaned, false
		}
		if cleaned.ContentSizeLt != nil && *cleaned.ContentSize >= *cleaned.ContentSizeLt {
			return cleaned, false
		}
	}
	if cleaned.ContentSizeGt != nil && cleaned.ContentSizeLt != nil && *cleaned.ContentSizeGt >= *cleaned.ContentSizeLt {
		return cleaned, false
	}
	return cleaned, true
}

// Matches reports whether d satisfies every selector in q, ContinueAfter
// included, except History and Limit/LimitBytes, which are applied by the
// caller after the candidate set is assembled (see driver implementations).
func (q Query) Matches(d Document) bool {
	if q.Path != nil && d.Path != *q.Path {
		return false
	}
	if q.PathPrefix != nil && !strings.HasPrefix(d.Path, *q.PathPrefix) {
		return false
	}
	if q.Author != nil && d.Author != *q.Author {
		return false
	}
	if q.Timestamp != nil && d.Timestamp != *q.Timestamp {
		return false
	}
	if q.TimestampGt != nil && d.Timestamp <= *q.TimestampGt {
		return false
	}
	if q.TimestampLt != nil && d.Timestamp >= *q.TimestampLt {
		return false
	}
	size := contentSize(d.Content)
	if q.ContentSize != nil && size != *q.ContentSize {
		return false
	}
	if q.ContentSizeGt != nil && size <= *q.ContentSizeGt {
		return false
	}
	if q.ContentSizeLt != nil && size >= *q.ContentSizeLt {
		return false
	}
	if !q.ContinueAfter.after(d) {
		return false
	}
	return true
}

func contentSize(content string) int {
	return len(content) // Content is UTF-8; len() is the byte length.
}

// LimitBytesCut truncates docs (already sorted) to respect q.Limit and
// q.LimitBytes, per the "stop before the document that would exceed, and
// exclude a trailing empty-content document exactly at the limit" rule.
func (q Query) LimitBytesCut(docs []Document) []Document {
	out := docs
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if q.LimitBytes <= 0 {
		return out
	}

	var total int64
	cut := len(out)
	for i, d := range out {
		if total >= q.LimitBytes {
			cut = i
			break
		}
		n := int64(contentSize(d.Content))
		if total+n > q.LimitBytes {
			cut = i
			break
		}
		total += n
	}
	return out[:cut]
}
