package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotLookup(t *testing.T) {
	snap := NewSnapshot("https://example.test/", []ElementReference{
		{Index: 4, TagName: "button"},
		{Index: 1, TagName: "a"},
		{Index: -2, TagName: "div"},
		{Index: 4, TagName: "input", AcceptsFiles: true},
	})

	assert.Equal(t, 2, snap.Len())

	ref, ok := snap.Lookup(4)
	require.True(t, ok)
	assert.Equal(t, "input", ref.TagName, "later duplicates replace earlier ones")

	_, ok = snap.Lookup(-2)
	assert.False(t, ok)

	assert.Equal(t, []int{1, 4}, snap.Indices(nil))
	assert.Equal(t, []int{4}, snap.Indices(func(r ElementReference) bool { return r.AcceptsFiles }))
}

func TestNilSnapshot(t *testing.T) {
	var snap *Snapshot
	_, ok := snap.Lookup(0)
	assert.False(t, ok)
	assert.Zero(t, snap.Len())
	assert.Nil(t, snap.Indices(nil))
}

func TestElementReference(t *testing.T) {
	ref := ElementReference{Index: 12, TagName: "a", Label: "  "}
	assert.Equal(t, `[data-browsersteps-index="12"]`, ref.Selector())
	assert.Equal(t, "tag: a, role: N/A, label: N/A", ref.Describe())
}

func TestFormatIndices(t *testing.T) {
	assert.Equal(t, "[]", FormatIndices(nil))
	assert.Equal(t, "[7]", FormatIndices([]int{7}))
	assert.Equal(t, "[0, 3, 19]", FormatIndices([]int{0, 3, 19}))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsTimeout(fmt.Errorf("click: %w", ErrTimeout)))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(ErrNotFound))
	assert.False(t, IsTimeout(errors.New("timeout")))
}

func TestSnapshotScriptArg(t *testing.T) {
	arg := SnapshotScriptArg(SnapshotOptions{})
	assert.Equal(t, DefaultSnapshotLimit, arg["limit"])
	assert.Equal(t, IndexAttribute, arg["attr"])
	assert.Equal(t, false, arg["includeHidden"])

	arg = SnapshotScriptArg(SnapshotOptions{Limit: 20, IncludeHidden: true})
	assert.Equal(t, 20, arg["limit"])
	assert.Equal(t, true, arg["includeHidden"])
}

func TestDecodeSnapshotElements(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"index": float64(0), "tag": "input", "input_type": "file", "accepts_files": true},
		map[string]interface{}{"index": float64(1), "tag": "button", "label": "Export"},
	}

	refs, err := DecodeSnapshotElements(raw)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, ElementReference{Index: 0, TagName: "input", InputType: "file", AcceptsFiles: true}, refs[0])
	assert.Equal(t, "Export", refs[1].Label)

	refs, err = DecodeSnapshotElements(nil)
	assert.NoError(t, err)
	assert.Empty(t, refs)

	_, err = DecodeSnapshotElements("not a list")
	assert.Error(t, err)
}

func TestDomainMatcher(t *testing.T) {
	m, err := NewDomainMatcher([]string{"Example.com", "*.example.com", "**.cdn.test", " "})
	require.NoError(t, err)
	assert.False(t, m.Unrestricted())

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/path", true},
		{"https://docs.EXAMPLE.com/", true},
		{"https://a.b.example.com/", false},
		{"https://evil-example.com/", false},
		{"https://static.eu.cdn.test/x.js", true},
		{"http://other.test/", false},
		{"wss://example.com/socket", true},
		{"about:blank", true},
		{"data:text/plain,hi", true},
		{"blob:https://other.test/abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, m.AllowsURL(tt.url))
		})
	}
}

func TestDomainMatcherUnrestricted(t *testing.T) {
	m, err := NewDomainMatcher(nil)
	require.NoError(t, err)
	assert.True(t, m.Unrestricted())
	assert.True(t, m.AllowsURL("https://anything.test/"))

	var nilMatcher *DomainMatcher
	assert.True(t, nilMatcher.AllowsHost("anything.test"))
}

func TestDomainMatcherRejectsBadPattern(t *testing.T) {
	_, err := NewDomainMatcher([]string{"[a-"})
	assert.Error(t, err)
}
