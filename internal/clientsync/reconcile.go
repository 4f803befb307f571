package clientsync

import (
	"context"
	"sort"
	"time"

	"github.com/relaymesh/signalhub/internal/domain"
)

// RemoteHistory is the subset of HistoryAPI (C8) Engine reconciles against.
// A real client talks to it over HTTP; tests and same-process embeddings
// (e.g. an admin tool) can pass *historyapi.HistoryAPI directly.
type RemoteHistory interface {
	MessageIDs(ctx context.Context, roomKey string, sinceTs *int64) ([]string, error)
	MessagesByIDs(ctx context.Context, roomKey string, ids []string) ([]domain.ChatMessage, error)
}

// Reconcile runs the five-step algorithm spec.md §4.9 names:
//  1. load the local cache
//  2. evict cached messages older than the retention window
//  3. fetch the server's current id set for the room
//  4. diff against the cache: promote cached SENT messages the server now
//     has to SAVED, drop cached SAVED ids the server no longer has (SENT
//     and FAILED ones are kept), fetch the bodies of server ids missing
//     from the cache
//  5. sort the merged result and write it back to the cache
//
// Deduplication throughout is by message id alone (spec.md §9(e)) — never
// by timestamp, sender, content, or state, since two distinct messages can
// legitimately share all of those.
func (e *Engine) Reconcile(ctx context.Context, room string) ([]domain.ChatMessage, error) {
	cached, err := e.cache.Load(ctx, room)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -e.retentionDays).UnixMilli()
	kept := cached[:0:0]
	for _, m := range cached {
		if m.Timestamp >= cutoff {
			kept = append(kept, m)
		}
	}
	cached = kept

	serverIDs, err := e.remote.MessageIDs(ctx, room, nil)
	if err != nil {
		return nil, err
	}
	onServer := make(map[string]bool, len(serverIDs))
	for _, id := range serverIDs {
		onServer[id] = true
	}

	byID := make(map[string]domain.ChatMessage, len(cached))
	var toFetch []string
	for _, id := range serverIDs {
		if _, have := indexByID(cached, id); !have {
			toFetch = append(toFetch, id)
		}
	}

	for _, m := range cached {
		if onServer[m.ID] && m.State == domain.StateSent {
			m.State = domain.StateSaved
		}
		if !onServer[m.ID] && m.State != domain.StateSent && m.State != domain.StateFailed {
			// A previously SAVED message the server no longer has (deleted
			// upstream) does not survive reconciliation. Locally-originated
			// messages still SENT/FAILED are kept — they may not have
			// reached the server yet.
			continue
		}
		byID[m.ID] = m
	}

	if len(toFetch) > 0 {
		fetched, err := e.remote.MessagesByIDs(ctx, room, toFetch)
		if err != nil {
			return nil, err
		}
		for _, m := range fetched {
			byID[m.ID] = m
		}
	}

	merged := make([]domain.ChatMessage, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].ID < merged[j].ID
	})

	if err := e.cache.Save(ctx, room, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func indexByID(msgs []domain.ChatMessage, id string) (int, bool) {
	for i, m := range msgs {
		if m.ID == id {
			return i, true
		}
	}
	return -1, false
}
