package artifact

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, s.EnsureJob(jobID))

	ref, err := s.Put(jobID, "wordlist.txt", strings.NewReader("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), ref.Size)
	assert.NotEmpty(t, ref.Hash)

	data, hash, err := s.Get(jobID, "wordlist.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.Equal(t, ref.Hash, hash)
}

func TestFileStore_PutUnknownJob(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put(uuid.New(), "x.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, core.KindJobUnknown, core.KindOf(err))
}

func TestFileStore_PutConflictOnFinalizedName(t *testing.T) {
	s := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, s.EnsureJob(jobID))

	_, err := s.Put(jobID, "x.txt", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = s.Put(jobID, "x.txt", strings.NewReader("second"))
	require.Error(t, err)
	assert.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestFileStore_GetMissingArtifact(t *testing.T) {
	s := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, s.EnsureJob(jobID))

	_, _, err := s.Get(jobID, "nope.txt")
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestFileStore_ListReturnsCreationOrder(t *testing.T) {
	s := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, s.EnsureJob(jobID))

	_, err := s.Put(jobID, "b.txt", strings.NewReader("b"))
	require.NoError(t, err)
	_, err = s.Put(jobID, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	names, err := s.List(jobID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "a.txt"}, names)
}

func TestFileStore_Drop(t *testing.T) {
	s := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, s.EnsureJob(jobID))
	_, err := s.Put(jobID, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	require.NoError(t, s.Drop(jobID))

	_, _, err = s.Get(jobID, "a.txt")
	require.Error(t, err)
	assert.False(t, s.HasJob(jobID))
}
