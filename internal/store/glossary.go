package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GlossaryEntry represents a row in the glossary table.
type GlossaryEntry struct {
	ID         string    `json:"id"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	SourceTerm string    `json:"source_term"`
	TargetTerm string    `json:"target_term"`
	CreatedAt  time.Time `json:"created_at"`
}

// AddGlossaryTerm inserts or replaces the entry for (sourceLang, targetLang,
// sourceTerm) and returns it. An empty targetTerm marks the term as
// "do not translate". Memory entries of the pair containing the term are
// invalidated so they are translated again with the term applied.
func (s *Store) AddGlossaryTerm(ctx context.Context, sourceLang, targetLang, sourceTerm, targetTerm string) (*GlossaryEntry, error) {
	sourceTerm = strings.TrimSpace(sourceTerm)
	if sourceTerm == "" {
		return nil, fmt.Errorf("%w: source term must not be empty", ErrInvalid)
	}
	if sourceLang == "" || targetLang == "" {
		return nil, fmt.Errorf("%w: source and target language are required", ErrInvalid)
	}

	e := &GlossaryEntry{
		ID:         "gl_" + uuid.NewString(),
		SourceLang: sourceLang,
		TargetLang: targetLang,
		SourceTerm: sourceTerm,
		TargetTerm: strings.TrimSpace(targetTerm),
		CreatedAt:  time.Now().UTC(),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, source_lang, target_lang, source_term, target_term, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceLang, e.TargetLang, e.SourceTerm, e.TargetTerm, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add glossary term: %w", err)
	}
	if err := invalidateMemoryWithTerm(ctx, tx, e.SourceLang, e.TargetLang, e.SourceTerm); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to add glossary term: %w", err)
	}
	return e, nil
}

// invalidateMemoryWithTerm marks memory entries of the pair whose source
// text contains term.
func invalidateMemoryWithTerm(ctx context.Context, tx *sql.Tx, sourceLang, targetLang, term string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE translation_memory SET invalidated = TRUE
		 WHERE source_lang = ? AND target_lang = ? AND instr(source_text, ?) > 0`,
		sourceLang, targetLang, normalizeText(term))
	if err != nil {
		return fmt.Errorf("failed to invalidate memory for %q: %w", term, err)
	}
	return nil
}

// GetGlossaryTerms returns all glossary terms for a language pair as a
// source-term → target-term map.
func (s *Store) GetGlossaryTerms(ctx context.Context, sourceLang, targetLang string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_term, target_term FROM glossary WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, err
		}
		terms[src] = tgt
	}
	return terms, rows.Err()
}

// GetGlossaryTerm returns a single entry by ID.
func (s *Store) GetGlossaryTerm(ctx context.Context, id string) (*GlossaryEntry, error) {
	var e GlossaryEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_lang, target_lang, source_term, target_term, created_at FROM glossary WHERE id = ?`, id).
		Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.SourceTerm, &e.TargetTerm, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("glossary term %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListGlossaryTerms returns all glossary entries, optionally filtered by language
// pair (pass empty strings to return everything).
func (s *Store) ListGlossaryTerms(ctx context.Context, sourceLang, targetLang string) ([]GlossaryEntry, error) {
	query := `SELECT id, source_lang, target_lang, source_term, target_term, created_at FROM glossary`
	var args []interface{}

	switch {
	case sourceLang != "" && targetLang != "":
		query += ` WHERE source_lang = ? AND target_lang = ?`
		args = append(args, sourceLang, targetLang)
	case sourceLang != "":
		query += ` WHERE source_lang = ?`
		args = append(args, sourceLang)
	case targetLang != "":
		query += ` WHERE target_lang = ?`
		args = append(args, targetLang)
	}
	query += ` ORDER BY source_lang, target_lang, source_term`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		if err := rows.Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.SourceTerm, &e.TargetTerm, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteGlossaryTerm removes a glossary entry by ID and invalidates the
// memory entries that were translated with it.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var sourceLang, targetLang, term string
	err = tx.QueryRowContext(ctx,
		`SELECT source_lang, target_lang, source_term FROM glossary WHERE id = ?`, id).
		Scan(&sourceLang, &targetLang, &term)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("glossary term %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id); err != nil {
		return err
	}
	if err := invalidateMemoryWithTerm(ctx, tx, sourceLang, targetLang, term); err != nil {
		return err
	}
	return tx.Commit()
}
