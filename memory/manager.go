package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Manager stores conversation sessions and their messages.
type Manager struct {
	db  *Database
	now func() time.Time
}

func NewManager(dbPath string) (*Manager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return &Manager{db: db, now: time.Now}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

// StartSession creates a new session for dataset.
func (m *Manager) StartSession(dataset, model string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		StartedAt: m.now().UTC(),
		Dataset:   dataset,
		ModelUsed: model,
	}

	_, err := m.db.GetDB().Exec(
		"INSERT INTO sessions (id, started_at, dataset, model_used) VALUES (?, ?, ?, ?)",
		session.ID, formatTime(session.StartedAt), session.Dataset, session.ModelUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

// RestoreSession loads an existing session.
func (m *Manager) RestoreSession(id string) (*Session, error) {
	var (
		session   Session
		startedAt string
		endedAt   sql.NullString
	)
	err := m.db.GetDB().QueryRow(
		"SELECT id, started_at, ended_at, dataset, model_used FROM sessions WHERE id = ?", id,
	).Scan(&session.ID, &startedAt, &endedAt, &session.Dataset, &session.ModelUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if session.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession marks a session as ended.
func (m *Manager) EndSession(id string) error {
	res, err := m.db.GetDB().Exec(
		"UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL",
		formatTime(m.now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := m.RestoreSession(id); err != nil {
			return err
		}
	}
	return nil
}

// SaveMessage appends msg to its session and sets its ID and Timestamp.
func (m *Manager) SaveMessage(msg *Message) error {
	if msg.SessionID == "" {
		return errors.New("message has no session id")
	}
	msg.Timestamp = m.now().UTC()

	var artifacts any
	if len(msg.Artifacts) > 0 {
		b, err := json.Marshal(msg.Artifacts)
		if err != nil {
			return fmt.Errorf("failed to encode artifacts: %w", err)
		}
		artifacts = string(b)
	}

	res, err := m.db.GetDB().Exec(
		`INSERT INTO messages (session_id, timestamp, role, content, category, tool_calls, artifacts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionID, formatTime(msg.Timestamp), msg.Role, msg.Content, msg.Category, msg.ToolCalls, artifacts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read message id: %w", err)
	}
	msg.ID = int(id)
	return nil
}

// GetSessionMessages returns the messages of a session in insertion order.
func (m *Manager) GetSessionMessages(sessionID string) ([]*Message, error) {
	rows, err := m.db.GetDB().Query(
		`SELECT id, session_id, timestamp, role, COALESCE(content, ''), COALESCE(category, ''), tool_calls, artifacts
		 FROM messages WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			msg       Message
			timestamp string
			toolCalls sql.NullString
			artifacts sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &timestamp, &msg.Role, &msg.Content, &msg.Category, &toolCalls, &artifacts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		if toolCalls.Valid {
			msg.ToolCalls = &toolCalls.String
		}
		if artifacts.Valid {
			if err := json.Unmarshal([]byte(artifacts.String), &msg.Artifacts); err != nil {
				return nil, fmt.Errorf("failed to decode artifacts: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// ListSessions returns the most recent sessions of dataset.
func (m *Manager) ListSessions(dataset string, limit int) ([]*SessionSummary, error) {
	rows, err := m.db.GetDB().Query(`
		SELECT s.id, s.started_at, s.ended_at, s.dataset, s.model_used,
			(SELECT COUNT(*) FROM messages WHERE session_id = s.id),
			COALESCE((SELECT content FROM messages WHERE session_id = s.id AND role = 'user' ORDER BY id DESC LIMIT 1), '')
		FROM sessions s
		WHERE s.dataset = ?
		ORDER BY s.started_at DESC
		LIMIT ?`, dataset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var summaries []*SessionSummary
	for rows.Next() {
		var (
			s         SessionSummary
			startedAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&s.ID, &startedAt, &endedAt, &s.Dataset, &s.ModelUsed, &s.MessageCount, &s.LastMessage); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if s.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if s.EndedAt, err = parseNullTime(endedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// timeLayout has a fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
