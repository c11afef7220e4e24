// Package sessions implements cherry2k's directory-keyed conversation
// store: the session registry (one row per working directory, rolling
// over after an idle window) and the message log beneath it.
//
// Grounded on original_source's storage::session and storage::message
// modules, translated onto database/sql + modernc.org/sqlite, and on the
// teacher's internal/sessions store for the package's overall shape
// (a *sql.DB-backed Store with one method per operation).
package sessions

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"cherry2k/internal/cherryerr"
	"cherry2k/internal/database"

	_ "modernc.org/sqlite"
)

// IdleWindow is the span of inactivity after which a new session is
// started for the same working directory, per spec.md §4.4.
const IdleWindow = 4 * time.Hour

// cleanupSampleCeiling bounds the uniform byte draw cleanup eligibility
// is sampled against: a draw below this value (~10.2% of [0,255]) allows
// CleanupOldSessions to actually delete rows on that call.
const cleanupSampleCeiling = 26

const sqliteTimeLayout = "2006-01-02 15:04:05"

// Role is a message's author role.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
	RoleSystem
)

// String renders the role the way it's stored in the database.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "user"
	}
}

// ParseRole parses a stored role string, defaulting to RoleUser (with a
// warning) for anything unrecognized, matching original_source's
// storage::message::parse_role.
func ParseRole(s string) Role {
	switch s {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		log.Printf("[sessions] unrecognized role %q, defaulting to user", s)
		return RoleUser
	}
}

// Session is a single conversation thread, keyed by working directory.
type Session struct {
	ID            string
	WorkingDir    string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// StoredMessage is a single persisted message in a session's log.
type StoredMessage struct {
	ID         int64
	SessionID  string
	Role       Role
	Content    string
	TokenCount *int64
	IsSummary  bool
	CreatedAt  time.Time
}

// Store is the SQLite-backed session and message store.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) the database at dbPath and
// returns a ready Store.
func NewStore(dbPath string) (*Store, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for callers that need direct SQL
// access (e.g. tests that back-date session timestamps).
func (s *Store) DB() *sql.DB { return s.db }

// GenerateSessionID produces a new session id in the
// "YYYY-MM-DD-HHMM-SSS-XXXX" format from spec.md §3: a millisecond
// timestamp component plus 16 bits of randomness to keep concurrent
// creations from colliding.
func GenerateSessionID(now time.Time) string {
	millis := now.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf(
		"%04d-%02d-%02d-%02d%02d-%03d-%04x",
		now.Year(), now.Month(), now.Day(),
		now.Hour(), now.Minute(),
		millis,
		randUint16(),
	)
}

func randUint16() uint16 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<16))
	if err != nil {
		return uint16(time.Now().UnixNano())
	}
	return uint16(n.Int64())
}

// IsValidSessionID reports whether s matches either the current 24-char
// session id format or the legacy 19-char one: both are lowercase hex
// digits and hyphens only.
func IsValidSessionID(s string) bool {
	if len(s) != 19 && len(s) != 24 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

// GetOrCreateSession returns the most recent session for workingDir if
// it was active within IdleWindow, otherwise starts a new one.
func (s *Store) GetOrCreateSession(workingDir string) (*Session, error) {
	now := time.Now().UTC()

	existing, err := s.latestSessionForDir(workingDir)
	if err != nil {
		return nil, err
	}
	if existing != nil && now.Sub(existing.LastMessageAt) < IdleWindow {
		return existing, nil
	}

	session := &Session{
		ID:            GenerateSessionID(now),
		WorkingDir:    workingDir,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (id, working_dir, created_at, last_message_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.WorkingDir, session.CreatedAt.Format(sqliteTimeLayout), session.LastMessageAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	return session, nil
}

// CreateSession always starts a new session for workingDir, ignoring
// any existing recent session — used by the "new" sub-command to force
// a fresh conversation on demand.
func (s *Store) CreateSession(workingDir string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:            GenerateSessionID(now),
		WorkingDir:    workingDir,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, working_dir, created_at, last_message_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.WorkingDir, session.CreatedAt.Format(sqliteTimeLayout), session.LastMessageAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return session, nil
}

func (s *Store) latestSessionForDir(workingDir string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, working_dir, created_at, last_message_at
		FROM sessions
		WHERE working_dir = ?
		ORDER BY last_message_at DESC
		LIMIT 1
	`, workingDir)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return session, nil
}

// GetSession fetches a session by id. It returns (nil, nil) — not an
// error — if no such session exists, matching original_source's
// get_session, which treats "not found" as a normal outcome.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, working_dir, created_at, last_message_at
		FROM sessions WHERE id = ?
	`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return session, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var session Session
	var createdAt, lastMessageAt string
	if err := row.Scan(&session.ID, &session.WorkingDir, &createdAt, &lastMessageAt); err != nil {
		return nil, err
	}
	session.CreatedAt = parseSQLiteTime(createdAt)
	session.LastMessageAt = parseSQLiteTime(lastMessageAt)
	return &session, nil
}

// SessionSummary is a lightweight listing row with a content preview of
// the most recent message.
type SessionSummary struct {
	Session
	Preview string
}

// ListSessions returns up to limit sessions ordered by recent activity,
// each annotated with a preview of its most recent message via a
// correlated subquery (original_source's list_sessions).
func (s *Store) ListSessions(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT s.id, s.working_dir, s.created_at, s.last_message_at,
		       COALESCE((
		           SELECT content FROM messages m
		           WHERE m.session_id = s.id AND m.is_summary = 0
		           ORDER BY m.id DESC LIMIT 1
		       ), '')
		FROM sessions s
		ORDER BY s.last_message_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var summary SessionSummary
		var createdAt, lastMessageAt string
		if err := rows.Scan(&summary.ID, &summary.WorkingDir, &createdAt, &lastMessageAt, &summary.Preview); err != nil {
			return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
		}
		summary.CreatedAt = parseSQLiteTime(createdAt)
		summary.LastMessageAt = parseSQLiteTime(lastMessageAt)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// UpdateSessionTimestamp bumps a session's last_message_at to now.
func (s *Store) UpdateSessionTimestamp(id string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET last_message_at = ? WHERE id = ?`,
		time.Now().UTC().Format(sqliteTimeLayout), id,
	)
	if err != nil {
		return &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return nil
}

// DeleteSession removes a session and (via ON DELETE CASCADE) its messages.
func (s *Store) DeleteSession(id string) error {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	if affected == 0 {
		return &cherryerr.StorageError{Kind: cherryerr.StorageSessionNotFound, SessionID: id}
	}
	return nil
}

// DeleteAllSessions removes every session and (via ON DELETE CASCADE)
// all messages, for the "clear" sub-command.
func (s *Store) DeleteAllSessions() (int, error) {
	result, err := s.db.Exec(`DELETE FROM sessions`)
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return int(affected), nil
}

// CleanupOldSessions opportunistically deletes sessions whose last
// activity is older than maxAge. It only acts on roughly 10% of calls
// (a uniform byte draw under cleanupSampleCeiling out of 256), so that
// callers can invoke it on every session resolution without turning
// every invocation into a table scan.
func (s *Store) CleanupOldSessions(maxAge time.Duration) (int, error) {
	draw, err := rand.Int(rand.Reader, big.NewInt(256))
	if err != nil || draw.Int64() >= cleanupSampleCeiling {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-maxAge).Format(sqliteTimeLayout)
	result, err := s.db.Exec(`DELETE FROM sessions WHERE last_message_at < ?`, cutoff)
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return int(affected), nil
}

// SaveMessage inserts a message and bumps its session's last_message_at
// in a single transaction, returning the new message's id.
func (s *Store) SaveMessage(sessionID string, role Role, content string, tokenCount *int64) (int64, error) {
	return s.saveMessage(sessionID, role, content, tokenCount, false)
}

// SaveSummary inserts a system-role, is_summary=1 message that replaces
// the rolled-up conversation history (C5's summarization output).
func (s *Store) SaveSummary(sessionID, content string) (int64, error) {
	return s.saveMessage(sessionID, RoleSystem, content, nil, true)
}

func (s *Store) saveMessage(sessionID string, role Role, content string, tokenCount *int64, isSummary bool) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	defer tx.Rollback()

	isSummaryInt := 0
	if isSummary {
		isSummaryInt = 1
	}

	result, err := tx.Exec(
		`INSERT INTO messages (session_id, role, content, token_count, is_summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, role.String(), content, tokenCount, isSummaryInt, time.Now().UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	if _, err := tx.Exec(
		`UPDATE sessions SET last_message_at = ? WHERE id = ?`,
		time.Now().UTC().Format(sqliteTimeLayout), sessionID,
	); err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	return id, nil
}

// GetMessages returns all of a session's messages in chronological order.
func (s *Store) GetMessages(sessionID string) ([]StoredMessage, error) {
	return s.queryMessages(`
		SELECT id, session_id, role, content, token_count, is_summary, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at ASC
	`, sessionID)
}

// GetMessagesSince returns a session's messages created strictly after since.
func (s *Store) GetMessagesSince(sessionID string, since time.Time) ([]StoredMessage, error) {
	return s.queryMessages(`
		SELECT id, session_id, role, content, token_count, is_summary, created_at
		FROM messages WHERE session_id = ? AND created_at > ? ORDER BY created_at ASC
	`, sessionID, since.UTC().Format(sqliteTimeLayout))
}

func (s *Store) queryMessages(query string, args ...interface{}) ([]StoredMessage, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var roleStr, createdAt string
		var isSummaryInt int
		if err := rows.Scan(&m.ID, &m.SessionID, &roleStr, &m.Content, &m.TokenCount, &isSummaryInt, &createdAt); err != nil {
			return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
		}
		m.Role = ParseRole(roleStr)
		m.IsSummary = isSummaryInt != 0
		m.CreatedAt = parseSQLiteTime(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of messages stored for a session.
func (s *Store) CountMessages(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return count, nil
}

// DeleteMessagesBefore deletes all of a session's messages with id less
// than beforeID, used after summarization replaces the rolled-up range.
func (s *Store) DeleteMessagesBefore(sessionID string, beforeID int64) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM messages WHERE session_id = ? AND id < ?`,
		sessionID, beforeID,
	)
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	return affected, nil
}

// ReplaceWithSummary atomically deletes a session's messages with id
// less than beforeID and inserts a single system-role summary message
// in their place, in one transaction — summarization must not lose
// messages if the summary insert fails after the delete.
func (s *Store) ReplaceWithSummary(sessionID string, beforeID int64, summary string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ? AND id < ?`, sessionID, beforeID); err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	result, err := tx.Exec(
		`INSERT INTO messages (session_id, role, content, token_count, is_summary, created_at)
		 VALUES (?, 'system', ?, NULL, 1, ?)`,
		sessionID, summary, time.Now().UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	if _, err := tx.Exec(`UPDATE sessions SET last_message_at = ? WHERE id = ?`, time.Now().UTC().Format(sqliteTimeLayout), sessionID); err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, Message: err.Error(), Cause: err}
	}

	return result.LastInsertId()
}

// parseSQLiteTime parses SQLite's "YYYY-MM-DD HH:MM:SS" TEXT datetime
// columns, falling back to the current time on a malformed value
// (grounded on original_source's storage::util::parse_datetime).
func parseSQLiteTime(s string) time.Time {
	s = strings.TrimSuffix(s, "Z")
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
