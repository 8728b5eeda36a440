package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// ErrNotFound is returned when no archived conversation matches.
var ErrNotFound = errors.New("archive: conversation not found")

// SQLStore archives finalized conversations to the conversation_archive table.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("archive: db cannot be nil")
	}
	return &SQLStore{db: db}
}

// Archive stores a finalized conversation.
func (s *SQLStore) Archive(ctx context.Context, res qualification.QualificationResult, leadID string) error {
	return s.ArchiveConversation(ctx, FromResult(res, leadID))
}

func (s *SQLStore) ArchiveConversation(ctx context.Context, record *ConversationRecord) error {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("archive: marshal fields: %w", err)
	}
	messages, err := json.Marshal(record.Messages)
	if err != nil {
		return fmt.Errorf("archive: marshal messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_archive (conversation_id, phone_hash, lead_id, tier, score, forced,
		    outcome, field_names, fields, messages, message_count, duration_seconds, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (conversation_id) DO NOTHING`,
		record.ConversationID, record.PhoneHash, record.LeadID, record.Tier, record.Score, record.Forced,
		record.Outcome, pq.Array(record.FieldNames()), fields, messages, record.MessageCount,
		record.DurationSeconds, record.ArchivedAt)
	if err != nil {
		return fmt.Errorf("archive: insert conversation: %w", err)
	}
	return nil
}

// ListByPhoneHash returns archived conversations for one sender, newest first.
func (s *SQLStore) ListByPhoneHash(ctx context.Context, phoneHash string) ([]*ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, phone_hash, lead_id, tier, score, forced, outcome,
		       field_names, fields, messages, message_count, duration_seconds, archived_at
		FROM conversation_archive WHERE phone_hash = $1 ORDER BY archived_at DESC`, phoneHash)
	if err != nil {
		return nil, fmt.Errorf("archive: list conversations: %w", err)
	}
	defer rows.Close()

	var out []*ConversationRecord
	for rows.Next() {
		var (
			r          ConversationRecord
			fieldNames []string
			fields     []byte
			messages   []byte
		)
		if err := rows.Scan(&r.ConversationID, &r.PhoneHash, &r.LeadID, &r.Tier, &r.Score, &r.Forced,
			&r.Outcome, pq.Array(&fieldNames), &fields, &messages, &r.MessageCount,
			&r.DurationSeconds, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("archive: scan conversation: %w", err)
		}
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return nil, fmt.Errorf("archive: decode fields: %w", err)
		}
		if err := json.Unmarshal(messages, &r.Messages); err != nil {
			return nil, fmt.Errorf("archive: decode messages: %w", err)
		}
		r.Version = RecordVersion
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list conversations: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
