package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed-width UTC timestamps keep lexical order equal to time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const decisionColumns = `id, created_at, session_id, stage, decision, reason, missing, user_message, draft, reply, duration_ms`

// SaveDecision stores r. A missing ID or timestamp is filled in, and the
// stored record is returned.
func (s *Store) SaveDecision(r DecisionRecord) (DecisionRecord, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC().Truncate(time.Microsecond)
	if r.Missing == nil {
		r.Missing = []string{}
	}

	missing, err := json.Marshal(r.Missing)
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("encoding missing terms: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO decisions (`+decisionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.Format(timeLayout), r.SessionID, r.Stage, r.Decision, r.Reason,
		string(missing), r.UserMessage, r.Draft, r.Reply, r.DurationMS,
	)
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("inserting decision: %w", err)
	}
	return r, nil
}

// GetDecision returns the record with the given id or ErrNotFound.
func (s *Store) GetDecision(id string) (DecisionRecord, error) {
	row := s.db.QueryRow(`SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	r, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DecisionRecord{}, ErrNotFound
	}
	return r, err
}

// ListFilter narrows ListDecisions.
type ListFilter struct {
	Decision  string
	SessionID string
	Limit     int
	Offset    int
}

// ListDecisions returns records newest first.
func (s *Store) ListDecisions(f ListFilter) ([]DecisionRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE 1=1`
	var args []any
	if f.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, f.Decision)
	}
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	results := []DecisionRecord{}
	for rows.Next() {
		r, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RecentDecisions returns the newest limit records.
func (s *Store) RecentDecisions(limit int) ([]DecisionRecord, error) {
	return s.ListDecisions(ListFilter{Limit: limit})
}

// DeleteDecision removes the record with the given id.
func (s *Store) DeleteDecision(id string) error {
	res, err := s.db.Exec(`DELETE FROM decisions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByDecision returns per-decision totals, most frequent first.
func (s *Store) CountByDecision() ([]DecisionCount, error) {
	rows, err := s.db.Query(`SELECT decision, COUNT(*) FROM decisions GROUP BY decision ORDER BY COUNT(*) DESC, decision ASC`)
	if err != nil {
		return nil, fmt.Errorf("counting decisions: %w", err)
	}
	defer rows.Close()

	counts := []DecisionCount{}
	for rows.Next() {
		var c DecisionCount
		if err := rows.Scan(&c.Decision, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (DecisionRecord, error) {
	var (
		r         DecisionRecord
		createdAt string
		missing   string
	)
	if err := row.Scan(&r.ID, &createdAt, &r.SessionID, &r.Stage, &r.Decision, &r.Reason,
		&missing, &r.UserMessage, &r.Draft, &r.Reply, &r.DurationMS); err != nil {
		return DecisionRecord{}, err
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t

	if err := json.Unmarshal([]byte(missing), &r.Missing); err != nil {
		return DecisionRecord{}, fmt.Errorf("decoding missing terms: %w", err)
	}
	if r.Missing == nil {
		r.Missing = []string{}
	}
	return r, nil
}
