package loam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }
func intPtr(n int) *int       { return &n }

func TestQueryCleanUpDefaultsHistory(t *testing.T) {
	cleaned, ok := Query{}.CleanUp()
	require.True(t, ok)
	assert.Equal(t, HistoryLatest, cleaned.History)
}

func TestQueryCleanUpContradictions(t *testing.T) {
	cases := []struct {
		name  string
		query Query
	}{
		{"path inconsistent with prefix", Query{Path: strPtr("/a/b"), PathPrefix: strPtr("/z")}},
		{"timestamp below gt bound", Query{Timestamp: i64Ptr(5), TimestampGt: i64Ptr(10)}},
		{"timestamp above lt bound", Query{Timestamp: i64Ptr(15), TimestampLt: i64Ptr(10)}},
		{"gt/lt bounds crossed", Query{TimestampGt: i64Ptr(10), TimestampLt: i64Ptr(5)}},
		{"contentSize below gt bound", Query{ContentSize: intPtr(1), ContentSizeGt: intPtr(5)}},
		{"contentSize above lt bound", Query{ContentSize: intPtr(10), ContentSizeLt: intPtr(5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := tc.query.CleanUp()
			assert.False(t, ok)
		})
	}
}

func TestQueryCleanUpPathConsistentWithPrefix(t *testing.T) {
	_, ok := Query{Path: strPtr("/a/b"), PathPrefix: strPtr("/a")}.CleanUp()
	assert.True(t, ok)
}

func TestQueryMatches(t *testing.T) {
	doc := Document{Path: "/a/b", Author: "@x", Content: "hello", Timestamp: 100}

	assert.True(t, Query{}.Matches(doc))
	assert.True(t, Query{Path: strPtr("/a/b")}.Matches(doc))
	assert.False(t, Query{Path: strPtr("/a/c")}.Matches(doc))
	assert.True(t, Query{PathPrefix: strPtr("/a")}.Matches(doc))
	assert.False(t, Query{PathPrefix: strPtr("/z")}.Matches(doc))
	assert.True(t, Query{Author: strPtr("@x")}.Matches(doc))
	assert.False(t, Query{Author: strPtr("@y")}.Matches(doc))
	assert.True(t, Query{Timestamp: i64Ptr(100)}.Matches(doc))
	assert.False(t, Query{Timestamp: i64Ptr(99)}.Matches(doc))
	assert.True(t, Query{TimestampGt: i64Ptr(50)}.Matches(doc))
	assert.False(t, Query{TimestampGt: i64Ptr(100)}.Matches(doc))
	assert.True(t, Query{TimestampLt: i64Ptr(200)}.Matches(doc))
	assert.False(t, Query{TimestampLt: i64Ptr(100)}.Matches(doc))
	assert.True(t, Query{ContentSize: intPtr(5)}.Matches(doc))
	assert.False(t, Query{ContentSize: intPtr(4)}.Matches(doc))
	assert.True(t, Query{ContentSizeGt: intPtr(4)}.Matches(doc))
	assert.False(t, Query{ContentSizeGt: intPtr(5)}.Matches(doc))
	assert.True(t, Query{ContentSizeLt: intPtr(6)}.Matches(doc))
	assert.False(t, Query{ContentSizeLt: intPtr(5)}.Matches(doc))
}

func TestQueryMatchesContinueAfter(t *testing.T) {
	cursor := Cursor{Path: "/a/b", Timestamp: 100, Signature: "M", set: true}
	q := Query{ContinueAfter: cursor}

	// History order is signature DESC, so at an equal path and timestamp a
	// lower signature sorts after the cursor and a higher one before it.
	after := Document{Path: "/a/b", Timestamp: 100, Signature: "A"}
	assert.True(t, q.Matches(after))

	before := Document{Path: "/a/b", Timestamp: 100, Signature: "Z"}
	assert.False(t, q.Matches(before))

	laterPath := Document{Path: "/a/c", Timestamp: 0, Signature: "A"}
	assert.True(t, q.Matches(laterPath))
}

// TestLimitBytesCutS5 is scenario S5: content sizes [0,1,2,0,3], limitBytes
// 3 stops before the fifth document (size 3, which would bring the total
// to 6) and also excludes the fourth, empty-content document — the
// trailing-empty-tail rule — leaving only the first three.
func TestLimitBytesCutS5(t *testing.T) {
	docs := []Document{
		{Content: ""},
		{Content: "a"},
		{Content: "bb"},
		{Content: ""},
		{Content: "ccc"},
	}
	q := Query{LimitBytes: 3}
	out := q.LimitBytesCut(docs)
	require.Len(t, out, 3)
	assert.Equal(t, "", out[0].Content)
	assert.Equal(t, "a", out[1].Content)
	assert.Equal(t, "bb", out[2].Content)
}

func TestLimitBytesCutWithoutTrailingEmpty(t *testing.T) {
	docs := []Document{
		{Content: "a"},
		{Content: "bb"},
		{Content: "ccc"},
	}
	out := Query{LimitBytes: 3}.LimitBytesCut(docs)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Content)
	assert.Equal(t, "bb", out[1].Content)
}

func TestLimitCorrectness(t *testing.T) {
	docs := []Document{{Content: "a"}, {Content: "b"}, {Content: "c"}}
	out := Query{Limit: 2}.LimitBytesCut(docs)
	assert.Len(t, out, 2)
}

func TestLimitBytesCutNoLimit(t *testing.T) {
	docs := []Document{{Content: "a"}, {Content: "b"}}
	out := Query{}.LimitBytesCut(docs)
	assert.Len(t, out, 2)
}
