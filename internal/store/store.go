// Package store implements the Store component (spec.md §4.3): a
// transactional GORM/Postgres persistence layer for rooms, messages,
// attachments, and the block list. It generalizes the teacher's
// PostgresRoomRepository (single table, transactional Update) into the
// four-table schema and operation set spec.md §4.3 names.
package store

import (
	"context"
	"crypto/subtle"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/store/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrUnauthorized = errors.New("store: unauthorized")
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates/updates the four tables spec.md §4.3 names.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Room{}, &model.Message{}, &model.Attachment{}, &model.BlockedKey{})
}

// GetOrCreateRoom is idempotent: it relies on the unique constraint on
// rooms.name and retries once on conflict rather than allowing duplicate
// rows under concurrent creation (spec.md §4.3).
func (s *Store) GetOrCreateRoom(ctx context.Context, name string) (int64, error) {
	var room model.Room
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&room).Error
	if err == nil {
		return room.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	room = model.Room{Name: name}
	if err := s.db.WithContext(ctx).Create(&room).Error; err != nil {
		// Lost the create race to a concurrent insert; the winning row
		// already satisfies the caller.
		var again model.Room
		if lookupErr := s.db.WithContext(ctx).Where("name = ?", name).First(&again).Error; lookupErr == nil {
			return again.ID, nil
		}
		return 0, err
	}
	return room.ID, nil
}

func resolveRoomID(tx *gorm.DB, roomKey string) (int64, error) {
	if id, err := strconv.ParseInt(roomKey, 10, 64); err == nil {
		return id, nil
	}
	var room model.Room
	if err := tx.Where("name = ?", roomKey).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return room.ID, nil
}

// PersistMessage inserts msg and its attachments in one transaction.
// Duplicate msg.ID is a silent no-op — the pre-existing row wins. The
// returned message always carries state SAVED, whether it was just
// inserted or already existed (spec.md §4.3, §8 message-id-uniqueness
// invariant).
func (s *Store) PersistMessage(ctx context.Context, roomID int64, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.State = domain.StateSaved

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Message
		err := tx.Where("id = ?", msg.ID).First(&existing).Error
		if err == nil {
			return nil // pre-existing row wins
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := model.Message{
			ID:        msg.ID,
			RoomID:    roomID,
			Timestamp: msg.Timestamp,
			Sender:    msg.Sender,
			Content:   msg.Content,
			PublicKey: msg.PublicKey,
			Signature: msg.Signature,
			State:     string(domain.StateSaved),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return nil
			}
			return err
		}

		for _, a := range msg.Attachments {
			_, raw, decodeErr := decodeDataURL(a.Data)
			if decodeErr != nil {
				return decodeErr
			}
			attRow := model.Attachment{
				MessageID: msg.ID,
				Name:      a.Name,
				Type:      a.Type,
				Size:      int64(len(raw)),
				Data:      raw,
			}
			if err := tx.Create(&attRow).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}

	return s.getMessageByID(ctx, msg.ID)
}

// SaveMessages ensures roomName's room exists, then persists each message
// in a single transaction (spec.md §4.3). Returns the count actually
// inserted.
func (s *Store) SaveMessages(ctx context.Context, roomName string, msgs []domain.ChatMessage) (int, error) {
	roomID, err := s.GetOrCreateRoom(ctx, roomName)
	if err != nil {
		return 0, err
	}

	inserted := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, msg := range msgs {
			var existing model.Message
			err := tx.Where("id = ?", msg.ID).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			row := model.Message{
				ID:        msg.ID,
				RoomID:    roomID,
				Timestamp: msg.Timestamp,
				Sender:    msg.Sender,
				Content:   msg.Content,
				PublicKey: msg.PublicKey,
				Signature: msg.Signature,
				State:     string(domain.StateSaved),
			}
			if err := tx.Create(&row).Error; err != nil {
				if isUniqueViolation(err) {
					continue
				}
				return err
			}

			for _, a := range msg.Attachments {
				_, raw, decodeErr := decodeDataURL(a.Data)
				if decodeErr != nil {
					return decodeErr
				}
				attRow := model.Attachment{
					MessageID: msg.ID,
					Name:      a.Name,
					Type:      a.Type,
					Size:      int64(len(raw)),
					Data:      raw,
				}
				if err := tx.Create(&attRow).Error; err != nil {
					return err
				}
			}
			inserted++
		}
		return nil
	})
	return inserted, err
}

// GetMessagesForRoom returns roomName's messages newest-first, hydrated
// with attachments rendered as data URLs (spec.md §4.3).
func (s *Store) GetMessagesForRoom(ctx context.Context, roomName string, limit, offset int) ([]domain.ChatMessage, error) {
	roomID, err := resolveRoomID(s.db.WithContext(ctx), roomName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rows []model.Message
	q := s.db.WithContext(ctx).
		Preload("Attachments").
		Where("room_id = ?", roomID).
		Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	return toDomainMessages(rows), nil
}

// GetMessageIdsForRoom returns just the ids for roomKey (a numeric room id
// or a room name), optionally bounded to messages at or after sinceTs
// (spec.md §4.3, a cheap cache-diff primitive for ClientSyncEngine).
func (s *Store) GetMessageIdsForRoom(ctx context.Context, roomKey string, sinceTs *int64) ([]string, error) {
	tx := s.db.WithContext(ctx)
	roomID, err := resolveRoomID(tx, roomKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	q := tx.Model(&model.Message{}).Where("room_id = ?", roomID)
	if sinceTs != nil {
		q = q.Where("timestamp >= ?", *sinceTs)
	}

	var ids []string
	if err := q.Order("timestamp DESC, id DESC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// GetMessagesByIDs is room-scoped: ids belonging to a different room are
// silently omitted (spec.md §4.3, §8 room-scoping invariant).
func (s *Store) GetMessagesByIDs(ctx context.Context, ids []string, roomKey string) ([]domain.ChatMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx := s.db.WithContext(ctx)
	roomID, err := resolveRoomID(tx, roomKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rows []model.Message
	if err := tx.Preload("Attachments").
		Where("room_id = ? AND id IN ?", roomID, ids).
		Order("timestamp DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainMessages(rows), nil
}

// DeleteMessage refuses unless requesterKey equals the message's stored
// public_key or equals adminKey (compared in constant time — spec.md §9(d)
// applies to admin comparisons generally). Attachments are deleted before
// the message in one transaction. Returns whether a row was removed.
func (s *Store) DeleteMessage(ctx context.Context, id, requesterKey, adminKey string) (bool, error) {
	removed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg model.Message
		err := tx.Where("id = ?", id).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // idempotent: NotFound is success-with-zero-rows
		}
		if err != nil {
			return err
		}

		if !constantTimeEqual(requesterKey, msg.PublicKey) && !(adminKey != "" && constantTimeEqual(requesterKey, adminKey)) {
			return ErrUnauthorized
		}

		if err := tx.Where("message_id = ?", id).Delete(&model.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Message{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// DeleteRoom deletes all attachments for all messages in the room, then
// all messages, then the room itself, in one transaction (spec.md §4.3).
func (s *Store) DeleteRoom(ctx context.Context, name string) (bool, error) {
	return s.deleteRoom(ctx, name, false)
}

// WipeRoom behaves like DeleteRoom but preserves the room row (spec.md
// §4.3).
func (s *Store) WipeRoom(ctx context.Context, name string) (bool, error) {
	return s.deleteRoom(ctx, name, true)
}

func (s *Store) deleteRoom(ctx context.Context, name string, preserveRoom bool) (bool, error) {
	existed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room model.Room
		err := tx.Where("name = ?", name).First(&room).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true

		if err := tx.Exec(`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE room_id = ?)`, room.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", room.ID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if !preserveRoom {
			if err := tx.Where("id = ?", room.ID).Delete(&model.Room{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// GetAttachment returns id's raw bytes, name, and mime type for direct HTTP
// serving (spec.md §4.8) — unlike the message read paths, which render
// attachment bytes as data URLs, this returns the raw column, since
// HistoryAPI streams it straight into a response body.
func (s *Store) GetAttachment(ctx context.Context, id int64) (name, mime string, data []byte, err error) {
	var row model.Attachment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", nil, ErrNotFound
		}
		return "", "", nil, err
	}
	return row.Name, row.Type, row.Data, nil
}

// DeleteAttachment is a single-row delete (spec.md §4.3).
func (s *Store) DeleteAttachment(ctx context.Context, id int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Attachment{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetRecentAttachments returns the limit most recent attachments
// newest-first by parent message timestamp, joined with the message and
// room for sender/room context (spec.md §4.3).
func (s *Store) GetRecentAttachments(ctx context.Context, limit int) ([]domain.RecentAttachment, error) {
	type row struct {
		model.Attachment
		Sender    string
		PublicKey string
		Timestamp int64
		RoomName  string
	}
	var rows []row
	q := s.db.WithContext(ctx).Table("attachments").
		Select("attachments.*, messages.sender AS sender, messages.public_key AS public_key, messages.timestamp AS timestamp, rooms.name AS room_name").
		Joins("JOIN messages ON messages.id = attachments.message_id").
		Joins("JOIN rooms ON rooms.id = messages.room_id").
		Order("messages.timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.RecentAttachment, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.RecentAttachment{
			Attachment: domain.Attachment{
				ID:   r.ID,
				Name: r.Name,
				Type: r.Type,
				Size: r.Size,
			},
			RoomName:        r.RoomName,
			SenderName:      r.Sender,
			SenderPublicKey: r.PublicKey,
			Timestamp:       r.Timestamp,
		})
	}
	return out, nil
}

// BlockUser is idempotent.
func (s *Store) BlockUser(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("pub_key = ?", key).
		Assign(model.BlockedKey{PubKey: key}).
		FirstOrCreate(&model.BlockedKey{}).Error
}

// IsBlocked is idempotent and cheap; callers that need to avoid a
// round-trip per message may cache this and refresh on block mutation
// commit (spec.md §5).
func (s *Store) IsBlocked(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.BlockedKey{}).Where("pub_key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteUserContent removes all of key's messages and their attachments
// across all rooms (spec.md §4.3).
func (s *Store) DeleteUserContent(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE public_key = ?)`, key).Error; err != nil {
			return err
		}
		return tx.Where("public_key = ?", key).Delete(&model.Message{}).Error
	})
}

// GetRoomInfo returns (name, messageCount) per room, sorted by name
// (spec.md §4.7), with messageCount normalized to int64 (spec.md §9(c)).
func (s *Store) GetRoomInfo(ctx context.Context) ([]domain.RoomInfo, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Find(&rooms).Error; err != nil {
		return nil, err
	}

	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Message{}).Where("room_id = ?", r.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		out = append(out, domain.RoomInfo{Name: r.Name, MessageCount: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) getMessageByID(ctx context.Context, id string) (domain.ChatMessage, error) {
	var row model.Message
	if err := s.db.WithContext(ctx).Preload("Attachments").Where("id = ?", id).First(&row).Error; err != nil {
		return domain.ChatMessage{}, err
	}
	msgs := toDomainMessages([]model.Message{row})
	return msgs[0], nil
}

func toDomainMessages(rows []model.Message) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg := domain.ChatMessage{
			ID:        row.ID,
			Timestamp: row.Timestamp,
			Sender:    row.Sender,
			Content:   row.Content,
			PublicKey: row.PublicKey,
			Signature: row.Signature,
			State:     domain.MessageState(row.State),
		}
		for _, a := range row.Attachments {
			msg.Attachments = append(msg.Attachments, domain.Attachment{
				ID:   a.ID,
				Name: a.Name,
				Type: a.Type,
				Size: a.Size,
				Data: encodeDataURL(a.Type, a.Data),
			})
		}
		out = append(out, msg)
	}
	return out
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isUniqueViolation(err error) bool {
	// Best-effort driver-agnostic check: Postgres reports SQLSTATE 23505 in
	// its error string via pgx; GORM doesn't normalize this across
	// drivers, so we fall back to substring matching for the common case.
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"23505", "duplicate key", "UNIQUE constraint"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
