package collab

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakePersister) UpdateDocument(ctx context.Context, roomID, editorUserID uuid.UUID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakePersister) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func TestApplyLocalPersistsFullText(t *testing.T) {
	persister := &fakePersister{}
	session := NewDocSession(uuid.New(), uuid.New(), persister, "", nil)

	require.NoError(t, session.ApplyLocal(context.Background(), "package main"))

	assert.Equal(t, "package main", session.Text())
	assert.Equal(t, "package main", persister.last())
}

func TestApplyLocalKeepsOptimisticStateOnFailure(t *testing.T) {
	persister := &fakePersister{err: errors.New("connection reset")}
	session := NewDocSession(uuid.New(), uuid.New(), persister, "old", nil)

	err := session.ApplyLocal(context.Background(), "new")

	require.Error(t, err)
	// The local view keeps the edit; no rollback.
	assert.Equal(t, "new", session.Text())
}

func TestApplyRemoteReplacesText(t *testing.T) {
	session := NewDocSession(uuid.New(), uuid.New(), &fakePersister{}, "ab", nil)

	changed := session.ApplyRemote("ac")

	assert.True(t, changed)
	assert.Equal(t, "ac", session.Text())
}

func TestApplyRemoteIgnoresEcho(t *testing.T) {
	session := NewDocSession(uuid.New(), uuid.New(), &fakePersister{}, "", nil)

	require.NoError(t, session.ApplyLocal(context.Background(), "x := 1"))

	// The author's own write arrives back on the feed.
	changed := session.ApplyRemote("x := 1")

	assert.False(t, changed)
	assert.Equal(t, "x := 1", session.Text())
}

func TestLastWriteWinsConvergence(t *testing.T) {
	persister := &fakePersister{}
	alice := NewDocSession(uuid.New(), uuid.New(), persister, "a", nil)
	bob := NewDocSession(uuid.New(), uuid.New(), persister, "a", nil)

	// Both edit from the same base; bob's write lands last.
	require.NoError(t, alice.ApplyLocal(context.Background(), "ab"))
	require.NoError(t, bob.ApplyLocal(context.Background(), "ac"))

	// The feed replays the committed order to everyone.
	for _, text := range persister.texts {
		alice.ApplyRemote(text)
		bob.ApplyRemote(text)
	}

	// Alice's edit is silently gone; both converge on the last write.
	assert.Equal(t, "ac", alice.Text())
	assert.Equal(t, "ac", bob.Text())
}
