package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{prefix: nil, want: nil},
		{prefix: []byte{}, want: nil},
		{prefix: []byte("ab"), want: []byte("ac")},
		{prefix: []byte{1, 0xff}, want: []byte{2}},
		{prefix: []byte{0xff, 0xff}, want: nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, PrefixEnd(tc.prefix), "prefix %x", tc.prefix)
	}
}

func TestIterOptions_Range(t *testing.T) {
	tests := []struct {
		name      string
		opts      IterOptions
		wantLower []byte
		wantUpper []byte
	}{
		{name: "unbounded"},
		{
			name:      "prefix",
			opts:      IterOptions{Prefix: []byte("ab")},
			wantLower: []byte("ab"),
			wantUpper: []byte("ac"),
		},
		{
			name:      "start_forward",
			opts:      IterOptions{Start: []byte("b")},
			wantLower: []byte("b"),
		},
		{
			name:      "start_reverse",
			opts:      IterOptions{Start: []byte("b"), Direction: Reverse},
			wantUpper: []byte("b\x00"),
		},
		{
			name:      "start_before_prefix_forward",
			opts:      IterOptions{Prefix: []byte("b"), Start: []byte("a")},
			wantLower: []byte("b"),
			wantUpper: []byte("c"),
		},
		{
			name:      "start_inside_prefix_forward",
			opts:      IterOptions{Prefix: []byte("b"), Start: []byte("b5")},
			wantLower: []byte("b5"),
			wantUpper: []byte("c"),
		},
		{
			name:      "start_inside_prefix_reverse",
			opts:      IterOptions{Prefix: []byte("b"), Start: []byte("b5"), Direction: Reverse},
			wantLower: []byte("b"),
			wantUpper: []byte("b5\x00"),
		},
		{
			name:      "start_after_prefix_reverse",
			opts:      IterOptions{Prefix: []byte("b"), Start: []byte("z"), Direction: Reverse},
			wantLower: []byte("b"),
			wantUpper: []byte("c"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lower, upper := tc.opts.Range()
			assert.Equal(t, tc.wantLower, lower)
			assert.Equal(t, tc.wantUpper, upper)
		})
	}
}

func TestIterOptions_Admits(t *testing.T) {
	opts := IterOptions{Prefix: []byte("ab"), Start: []byte("ab2")}
	assert.True(t, opts.Admits([]byte("ab2")))
	assert.True(t, opts.Admits([]byte("ab9")))
	assert.False(t, opts.Admits([]byte("ab1")))
	assert.False(t, opts.Admits([]byte("ac")))

	opts.Direction = Reverse
	assert.True(t, opts.Admits([]byte("ab1")))
	assert.True(t, opts.Admits([]byte("ab2")))
	assert.False(t, opts.Admits([]byte("ab20")))
}

type sliceIterator struct {
	entries []KV
	pos     int
	err     error
	closed  bool
}

func (s *sliceIterator) Next() bool {
	if s.pos >= len(s.entries) {
		return false
	}
	s.pos++
	return true
}
func (s *sliceIterator) Key() []byte   { return s.entries[s.pos-1].Key }
func (s *sliceIterator) Value() []byte { return s.entries[s.pos-1].Value }
func (s *sliceIterator) Err() error {
	if s.pos >= len(s.entries) {
		return s.err
	}
	return nil
}
func (s *sliceIterator) Close() error {
	s.closed = true
	return nil
}

func TestEntries(t *testing.T) {
	boom := errors.New("boom")
	it := &sliceIterator{
		entries: []KV{{Key: []byte("a")}, {Key: []byte("b")}},
		err:     boom,
	}

	var keys []string
	var gotErr error
	for kv, err := range Entries(it) {
		if err != nil {
			gotErr = err
			continue
		}
		keys = append(keys, string(kv.Key))
	}
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.ErrorIs(t, gotErr, boom)
	assert.True(t, it.closed)
}

func TestEntries_StopEarlyCloses(t *testing.T) {
	it := &sliceIterator{entries: []KV{{Key: []byte("a")}, {Key: []byte("b")}}}
	for range Entries(it) {
		break
	}
	assert.True(t, it.closed)
}

func TestCollect_KeepsEntriesBeforeFailure(t *testing.T) {
	boom := errors.New("boom")
	entries, err := Collect(&sliceIterator{entries: []KV{{Key: []byte("a")}}, err: boom})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []KV{{Key: []byte("a")}}, entries)

	entries, err = Collect(ErrorIterator(boom))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, entries)
}
