// Package collab holds the client-side state of the shared document. One
// DocSession mirrors a room's code text: local edits apply optimistically
// and persist asynchronously; remote changes from the feed replace the text
// wholesale. Last write wins, so concurrent edits race and the loser's text
// disappears without notice.
package collab

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ddenisenko/clubcode/lib/logger/sl"
	"github.com/google/uuid"
)

// Persister stores the full document text. Implemented by the room service.
type Persister interface {
	UpdateDocument(ctx context.Context, roomID, editorUserID uuid.UUID, text string) error
}

type DocSession struct {
	roomID    uuid.UUID
	userID    uuid.UUID
	persister Persister
	log       *slog.Logger

	mu   sync.RWMutex
	text string
}

func NewDocSession(roomID, userID uuid.UUID, persister Persister, initial string, log *slog.Logger) *DocSession {
	if log == nil {
		log = slog.Default()
	}
	return &DocSession{
		roomID:    roomID,
		userID:    userID,
		persister: persister,
		log:       log,
		text:      initial,
	}
}

// ApplyLocal updates the local view immediately and persists the full new
// text. On a write failure the optimistic local state is kept, not rolled
// back; the user sees their edit and the next successful write restores
// consistency.
func (d *DocSession) ApplyLocal(ctx context.Context, newText string) error {
	d.mu.Lock()
	d.text = newText
	d.mu.Unlock()

	if err := d.persister.UpdateDocument(ctx, d.roomID, d.userID, newText); err != nil {
		d.log.Error("failed to persist edit",
			slog.String("room_id", d.roomID.String()),
			sl.Err(err),
		)
		return err
	}
	return nil
}

// ApplyRemote replaces the local text with a change observed on the feed.
// Text identical to the current state is ignored, which also breaks the
// feedback loop: the author's own write comes back on the feed and must
// not be re-persisted.
func (d *DocSession) ApplyRemote(newText string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.text == newText {
		return false
	}
	d.text = newText
	return true
}

func (d *DocSession) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}
