package bolt

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/dbtest"
)

func openStore(t *testing.T, path string, opts Options) *Store {
	t.Helper()
	s, err := Open(path, opts)
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.Backend {
		return openStore(t, filepath.Join(t.TempDir(), "test.db"), Options{NoSync: true, ExpectedKeys: 1024})
	})
}

func TestStore_Compressed(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.Backend {
		return openStore(t, filepath.Join(t.TempDir(), "test.db"), Options{NoSync: true, Compression: true})
	})
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := openStore(t, path, Options{Compression: true})

	big := bytes.Repeat([]byte("compressible "), 1000)
	_, _, err := s.Put([]byte("big"), 7, big)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// The compression setting is fixed at creation
	_, err = Open(path, Options{Compression: false})
	require.ErrorIs(t, err, ErrCompressionMismatch)

	s = openStore(t, path, Options{Compression: true})
	defer s.Close() //nolint:errcheck // test cleanup

	got, ok, err := s.Get([]byte("big"), 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, got)

	// The bloom filter is rebuilt from the existing keys
	exists, err := s.Exists([]byte("big"), 7)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestExists_FilterFalsePositiveIsChecked(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "test.db"), Options{NoSync: true})
	defer s.Close() //nolint:errcheck // test cleanup

	_, _, err := s.Put([]byte("gone"), 1, []byte("v"))
	require.NoError(t, err)
	_, _, err = s.Delete([]byte("gone"), 1)
	require.NoError(t, err)

	// The filter still reports the key, the tree lookup does not
	exists, err := s.Exists([]byte("gone"), 1)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCodec(t *testing.T) {
	for _, c := range []codec{{compress: false}, {compress: true}} {
		for _, value := range [][]byte{nil, {}, []byte("value"), bytes.Repeat([]byte{0xab}, 4096)} {
			decoded, err := c.decode(c.encode(value))
			require.NoError(t, err)
			assert.Equal(t, len(value), len(decoded))
			assert.NotNil(t, decoded)
			assert.True(t, bytes.Equal(value, decoded))
		}
	}

	_, err := codec{}.decode(nil)
	assert.ErrorIs(t, err, errCorruptValue)

	_, err = codec{}.decode([]byte{9, 1, 2})
	assert.Error(t, err)
}

func TestBatchWrite_Atomic(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "test.db"), Options{NoSync: true})
	defer s.Close() //nolint:errcheck // test cleanup

	err := s.BatchWrite([]db.WriteOperation{
		db.Insert([]byte("key1"), 1, []byte("value1")),
		db.Insert(nil, 1, nil),
		{Kind: 0, Key: []byte("bad"), Column: 1},
	})
	var batchErr *db.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 2, batchErr.Index)

	// Nothing from the failed batch is visible
	exists, err := s.Exists([]byte("key1"), 1)
	require.NoError(t, err)
	assert.False(t, exists)
}
