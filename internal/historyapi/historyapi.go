// Package historyapi implements HistoryAPI (C8, spec.md §4.8): the
// unauthenticated read surface ClientSyncEngine (C9) polls to reconcile its
// local cache, plus attachment byte serving. Every route here is read-only
// and requires no signature — spec.md §4.8 draws the trust boundary at
// mutation, not at read.
package historyapi

import (
	"context"

	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/store"
)

const minWindowDays = 2

// HistoryAPI wraps Store's read paths with the defaults/clamps spec.md §4.8
// requires (day-window minimum, limit defaults) so callers of the Gin
// layer never see an unclamped raw store call.
type HistoryAPI struct {
	store *store.Store
}

func New(st *store.Store) *HistoryAPI {
	return &HistoryAPI{store: st}
}

// MessageIDs returns roomKey's message ids, newest-first. sinceTs, when
// non-nil, restricts the result to ids at or after that timestamp; the
// HTTP layer derives it from the `daysOfHistory` query parameter, clamped
// to at least minWindowDays via ClampWindowDays.
func (h *HistoryAPI) MessageIDs(ctx context.Context, roomKey string, sinceTs *int64) ([]string, error) {
	return h.store.GetMessageIdsForRoom(ctx, roomKey, sinceTs)
}

// MessagesByIDs fetches the messages named by ids, scoped to roomKey. ids
// outside roomKey are silently omitted by Store (spec.md §8).
func (h *HistoryAPI) MessagesByIDs(ctx context.Context, roomKey string, ids []string) ([]domain.ChatMessage, error) {
	return h.store.GetMessagesByIDs(ctx, ids, roomKey)
}

const defaultHistoryLimit = 50

// History returns roomKey's messages newest-first, limit+offset paginated
// (spec.md §4.8). limit <= 0 uses defaultHistoryLimit.
func (h *HistoryAPI) History(ctx context.Context, roomName string, limit, offset int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return h.store.GetMessagesForRoom(ctx, roomName, limit, offset)
}

// Attachment returns id's name, mime type, and raw bytes for direct
// serving.
func (h *HistoryAPI) Attachment(ctx context.Context, id int64) (name, mime string, data []byte, err error) {
	return h.store.GetAttachment(ctx, id)
}

// ClampWindowDays enforces spec.md §4.8's "N >= 2" floor on day-windowed
// id queries so a caller-supplied 0 or 1 can't produce a window so narrow
// it misses same-day messages sent just before the boundary.
func ClampWindowDays(days int) int {
	if days < minWindowDays {
		return minWindowDays
	}
	return days
}
