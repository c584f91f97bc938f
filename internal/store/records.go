package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/doktran/internal"
)

const recordColumns = `id, user, filename, source_lang, detected_lang, target_lang, source_text,
	translated_text, primary_service, comparison_service, comparison_text, comparison_error,
	source_url, audio_url, created_at`

// SaveRecord inserts rec. An empty ID is replaced by a new UUID and a zero
// Timestamp by the current time; both are written back to rec.
func (s *Store) SaveRecord(ctx context.Context, rec *internal.TranslationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.User, rec.Filename, rec.SourceLang, rec.DetectedLang, rec.TargetLang, rec.SourceText,
		rec.TranslatedText, rec.PrimaryService, rec.ComparisonService, rec.ComparisonText, rec.ComparisonError,
		rec.SourceURL, rec.AudioURL, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*internal.TranslationRecord, error) {
	var r internal.TranslationRecord
	err := row.Scan(&r.ID, &r.User, &r.Filename, &r.SourceLang, &r.DetectedLang, &r.TargetLang, &r.SourceText,
		&r.TranslatedText, &r.PrimaryService, &r.ComparisonService, &r.ComparisonText, &r.ComparisonError,
		&r.SourceURL, &r.AudioURL, &r.Timestamp)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRecord returns the record with the given id. A non-empty user restricts
// the lookup to that user's records.
func (s *Store) GetRecord(ctx context.Context, id, user string) (*internal.TranslationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM translation_records WHERE id = ?`
	args := []any{id}
	if user != "" {
		query += ` AND user = ?`
		args = append(args, user)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns records newest first. A non-empty user filters by
// owner; limit <= 0 means 50.
func (s *Store) ListRecords(ctx context.Context, limit, offset int, user string) ([]internal.TranslationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + recordColumns + ` FROM translation_records`
	var args []any
	if user != "" {
		query += ` WHERE user = ?`
		args = append(args, user)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []internal.TranslationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// DeleteRecord removes a record. A non-empty user restricts deletion to that
// user's records.
func (s *Store) DeleteRecord(ctx context.Context, id, user string) error {
	query := `DELETE FROM translation_records WHERE id = ?`
	args := []any{id}
	if user != "" {
		query += ` AND user = ?`
		args = append(args, user)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}
