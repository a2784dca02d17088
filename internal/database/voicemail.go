package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const voicemailSchema = `
CREATE TABLE IF NOT EXISTS voicemails (
	id                 BIGSERIAL PRIMARY KEY,
	call_sid           TEXT NOT NULL,
	from_number        TEXT NOT NULL,
	recording_url      TEXT NOT NULL,
	recording_sid      TEXT,
	duration_seconds   INTEGER,
	notified           BOOLEAN NOT NULL DEFAULT FALSE,
	received_at        TIMESTAMPTZ NOT NULL
)`

// VoicemailRecord is one recorded message left by a called-back customer.
type VoicemailRecord struct {
	CallSID         string
	From            string
	RecordingURL    string
	RecordingSID    string
	DurationSeconds int
	Notified        bool
	ReceivedAt      time.Time
}

// VoicemailRepository stores voicemail records in PostgreSQL.
type VoicemailRepository struct {
	db *sql.DB
}

func NewVoicemailRepository(db *sql.DB) *VoicemailRepository {
	return &VoicemailRepository{db: db}
}

func (r *VoicemailRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, voicemailSchema); err != nil {
		return fmt.Errorf("voicemails table could not be created: %w", err)
	}
	return nil
}

func (r *VoicemailRepository) SaveVoicemail(ctx context.Context, rec VoicemailRecord) error {
	query := `
		INSERT INTO voicemails (call_sid, from_number, recording_url, recording_sid, duration_seconds, notified, received_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, 0), $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		rec.CallSID, rec.From, rec.RecordingURL, rec.RecordingSID, rec.DurationSeconds, rec.Notified, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("voicemail insert failed for call %s: %w", rec.CallSID, err)
	}
	return nil
}
