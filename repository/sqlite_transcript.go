package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akinalp/mqvi-client/database"
	"github.com/akinalp/mqvi-client/models"
)

// sqliteTranscriptRepo, TranscriptRepository interface'inin SQLite implementasyonu.
type sqliteTranscriptRepo struct {
	db *sql.DB
}

// NewSQLiteTranscriptRepo, constructor: interface döner.
func NewSQLiteTranscriptRepo(db *sql.DB) TranscriptRepository {
	return &sqliteTranscriptRepo{db: db}
}

func (r *sqliteTranscriptRepo) ReplaceChannel(ctx context.Context, channel string, msgs []models.Message) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cached_messages WHERE channel = ?`, channel); err != nil {
			return fmt.Errorf("failed to clear cached channel: %w", err)
		}

		for i, m := range msgs {
			if err := insertMessage(ctx, tx, channel, m, i); err != nil {
				return err
			}
		}

		return touchChannel(ctx, tx, channel)
	})
}

func (r *sqliteTranscriptRepo) Append(ctx context.Context, msg models.Message) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM cached_messages WHERE channel = ?`,
			msg.Channel,
		).Scan(&next); err != nil {
			return fmt.Errorf("failed to read next position: %w", err)
		}

		if err := insertMessage(ctx, tx, msg.Channel, msg, next); err != nil {
			return err
		}
		return touchChannel(ctx, tx, msg.Channel)
	})
}

func (r *sqliteTranscriptRepo) GetByChannel(ctx context.Context, channel string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, channel, sender, text, ts, voice_file, voice_secs, voice_ref
		FROM cached_messages
		WHERE channel = ?
		ORDER BY ts ASC, position ASC`, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		var file, ref sql.NullString
		var secs sql.NullInt64

		if err := rows.Scan(&m.ID, &m.Channel, &m.From, &m.Text, &m.Timestamp, &file, &secs, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan cached message row: %w", err)
		}
		if ref.Valid {
			m.Voice = &models.VoiceAttachment{
				Filename:        file.String,
				DurationSeconds: int(secs.Int64),
				DownloadRef:     ref.String,
			}
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// insertMessage, tek satır yazar. Aynı (channel, id) zaten varsa yoksayılır.
func insertMessage(ctx context.Context, q database.TxQuerier, channel string, m models.Message, position int) error {
	var file, ref sql.NullString
	var secs sql.NullInt64
	if m.Voice != nil {
		file = sql.NullString{String: m.Voice.Filename, Valid: true}
		secs = sql.NullInt64{Int64: int64(m.Voice.DurationSeconds), Valid: true}
		ref = sql.NullString{String: m.Voice.DownloadRef, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO cached_messages
			(channel, id, sender, text, ts, position, voice_file, voice_secs, voice_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		channel, m.ID, m.From, m.Text, m.Timestamp, position, file, secs, ref,
	)
	if err != nil {
		return fmt.Errorf("failed to cache message %s: %w", m.ID, err)
	}
	return nil
}

func touchChannel(ctx context.Context, q database.TxQuerier, channel string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cached_channels (channel, synced_at) VALUES (?, ?)
		ON CONFLICT(channel) DO UPDATE SET synced_at = excluded.synced_at`,
		channel, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to update channel sync time: %w", err)
	}
	return nil
}
