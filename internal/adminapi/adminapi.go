// Package adminapi implements AdminAPI (C7, spec.md §4.7): the
// admin-key-gated mutating operations layered on top of Store (C3),
// following the teacher's controller-wraps-service
// pattern from internal/api/http/room_controller.go.
package adminapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/store"
)

// ErrForbidden is returned when the caller's public key does not match the
// configured admin key, compared in constant time (spec.md §9(d)).
var ErrForbidden = errors.New("adminapi: forbidden")

// AdminAPI is C7: each method calls straight through to the matching Store
// operation (DeleteRoom, DeleteAttachment, ...), which does no caller check
// of its own; the only check AdminAPI adds is the "I am the operator" gate
// spec.md §4.7 requires for operator-only endpoints. Message deletion by the message's own owner or
// by the configured admin key is spec.md §6's single shared, non-admin
// `delete-message` endpoint (internal/messagesapi), not part of this
// component's own operator-only route list, so this component has no need
// to notify live hub connections itself.
type AdminAPI struct {
	store    *store.Store
	adminKey string
	log      *slog.Logger
}

func New(st *store.Store, adminKeyHex string, log *slog.Logger) *AdminAPI {
	return &AdminAPI{store: st, adminKey: adminKeyHex, log: log}
}

// authorize compares callerKey to the configured admin key in constant
// time (spec.md §9(d)). An empty configured admin key never authorizes
// anyone — that is a disabled admin surface, not an open one.
func (a *AdminAPI) authorize(callerKey string) error {
	if a.adminKey == "" || callerKey == "" {
		return ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(callerKey), []byte(a.adminKey)) != 1 {
		return ErrForbidden
	}
	return nil
}

// DeleteRoom removes roomName and everything in it.
func (a *AdminAPI) DeleteRoom(ctx context.Context, callerKey, roomName string) (bool, error) {
	if err := a.authorize(callerKey); err != nil {
		return false, err
	}
	return a.store.DeleteRoom(ctx, roomName)
}

func (a *AdminAPI) DeleteAttachment(ctx context.Context, callerKey string, attachmentID int64) (bool, error) {
	if err := a.authorize(callerKey); err != nil {
		return false, err
	}
	return a.store.DeleteAttachment(ctx, attachmentID)
}

// BlockUser blocks key and deletes its existing content. A content-deletion
// failure is surfaced to the caller, but the block itself has already
// committed by the time DeleteUserContent runs — a partial failure here
// still leaves the user blocked (spec.md §4.7, §8).
func (a *AdminAPI) BlockUser(ctx context.Context, callerKey, targetKey string) error {
	if err := a.authorize(callerKey); err != nil {
		return err
	}
	if err := a.store.BlockUser(ctx, targetKey); err != nil {
		return err
	}
	return a.store.DeleteUserContent(ctx, targetKey)
}

func (a *AdminAPI) GetRoomInfo(ctx context.Context, callerKey string) ([]domain.RoomInfo, error) {
	if err := a.authorize(callerKey); err != nil {
		return nil, err
	}
	return a.store.GetRoomInfo(ctx)
}

const recentAttachmentsLimit = 100

func (a *AdminAPI) GetRecentAttachments(ctx context.Context, callerKey string) ([]domain.RecentAttachment, error) {
	if err := a.authorize(callerKey); err != nil {
		return nil, err
	}
	return a.store.GetRecentAttachments(ctx, recentAttachmentsLimit)
}

const (
	testRoomName        = "test"
	testDataDays        = 7
	testDataPerDay      = 10
	testDataSenderCount = 3
)

// CreateTestData wipes the well-known "test" room and repopulates it with
// testDataDays*testDataPerDay unsigned seed messages spread over the past
// week, timestamps jittered within each day so the room doesn't look
// artificially uniform (spec.md §4.7). now is passed in rather than read
// from time.Now() so the operation is deterministic under test; seed fixes
// the jitter so repeated calls in tests are reproducible.
func (a *AdminAPI) CreateTestData(ctx context.Context, callerKey string, now time.Time) (int, error) {
	if err := a.authorize(callerKey); err != nil {
		return 0, err
	}
	if _, err := a.store.WipeRoom(ctx, testRoomName); err != nil {
		return 0, err
	}

	rng := rand.New(rand.NewSource(1))
	senders := make([]string, testDataSenderCount)
	for i := range senders {
		senders[i] = "seed-user-" + string(rune('a'+i))
	}

	var msgs []domain.ChatMessage
	dayMs := int64(24 * time.Hour / time.Millisecond)
	for day := testDataDays - 1; day >= 0; day-- {
		dayStart := now.Add(-time.Duration(day) * 24 * time.Hour)
		dayStartMs := dayStart.UnixMilli() - dayStart.UnixMilli()%dayMs
		for i := 0; i < testDataPerDay; i++ {
			jitter := rng.Int63n(dayMs)
			sender := senders[rng.Intn(len(senders))]
			msgs = append(msgs, domain.ChatMessage{
				ID:        seedMessageID(day, i),
				Timestamp: dayStartMs + jitter,
				Sender:    sender,
				Content:   seedMessageContent(day, i),
				PublicKey: sender,
			})
		}
	}

	n, err := a.store.SaveMessages(ctx, testRoomName, msgs)
	if err != nil {
		return 0, err
	}
	a.log.Info("seeded test room", "count", n)
	return n, nil
}

func seedMessageID(day, i int) string {
	return "seed-" + strconv.Itoa(day) + "-" + strconv.Itoa(i)
}

func seedMessageContent(day, i int) string {
	return "seed message " + strconv.Itoa(i) + " from " + strconv.Itoa(day) + " day(s) ago"
}
