// Package infra implements infrastructure concerns (storage, process, clock).
package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

const (
	storeDBName = "coordinator.db"

	historyCap = 100
)

// EncryptedStore implements domain.Store using a SQLCipher encrypted
// SQLite database. All coordinator state lives here; the native layer
// only mirrors it.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted coordinator database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocked_apps (
		target_id TEXT NOT NULL,
		block_type TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		daily_limit_min INTEGER NOT NULL DEFAULT 0,
		used_today_min INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (target_id, block_type)
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		target_ids TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		days TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_limits (
		target_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		limit_min INTEGER NOT NULL,
		used_min INTEGER NOT NULL DEFAULT 0,
		last_reset TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS current_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		amount INTEGER NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_baseline (
		date TEXT NOT NULL,
		target_id TEXT NOT NULL,
		foreground_ms INTEGER NOT NULL,
		PRIMARY KEY (date, target_id)
	);

	CREATE TABLE IF NOT EXISTS scheduled_lockins (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- blocked set ---

func (s *EncryptedStore) BlockedApps() ([]domain.BlockedApp, error) {
	rows, err := s.db.Query(`
		SELECT target_id, block_type, display_name, daily_limit_min, used_today_min
		FROM blocked_apps ORDER BY target_id, block_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.BlockedApp
	for rows.Next() {
		var a domain.BlockedApp
		var bt string
		if err := rows.Scan(&a.TargetID, &bt, &a.DisplayName, &a.DailyLimitMinutes, &a.UsedTodayMinutes); err != nil {
			return nil, err
		}
		a.Type = domain.BlockType(bt)
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *EncryptedStore) SaveBlockedApp(app domain.BlockedApp) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO blocked_apps
		(target_id, block_type, display_name, daily_limit_min, used_today_min)
		VALUES (?, ?, ?, ?, ?)`,
		app.TargetID, string(app.Type), app.DisplayName, app.DailyLimitMinutes, app.UsedTodayMinutes)
	return err
}

func (s *EncryptedStore) RemoveBlockedApp(targetID string, blockType domain.BlockType) error {
	_, err := s.db.Exec(`DELETE FROM blocked_apps WHERE target_id = ? AND block_type = ?`,
		targetID, string(blockType))
	return err
}

// --- schedules ---

func (s *EncryptedStore) Schedules() ([]domain.BlockSchedule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, target_ids, start_time, end_time, days, active, created_at
		FROM schedules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.BlockSchedule
	for rows.Next() {
		var sc domain.BlockSchedule
		var targets, days string
		var active int
		var createdAt int64
		if err := rows.Scan(&sc.ID, &sc.Name, &targets, &sc.StartTime, &sc.EndTime, &days, &active, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(targets), &sc.TargetIDs); err != nil {
			return nil, fmt.Errorf("malformed schedule %s: %w", sc.ID, err)
		}
		if err := json.Unmarshal([]byte(days), &sc.DaysOfWeek); err != nil {
			return nil, fmt.Errorf("malformed schedule %s: %w", sc.ID, err)
		}
		sc.Active = active != 0
		sc.CreatedAt = time.Unix(createdAt, 0)
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *EncryptedStore) SaveSchedule(sc domain.BlockSchedule) error {
	targets, err := json.Marshal(sc.TargetIDs)
	if err != nil {
		return err
	}
	days, err := json.Marshal(sc.DaysOfWeek)
	if err != nil {
		return err
	}
	active := 0
	if sc.Active {
		active = 1
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO schedules
		(id, name, target_ids, start_time, end_time, days, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, string(targets), sc.StartTime, sc.EndTime, string(days), active, sc.CreatedAt.Unix())
	return err
}

func (s *EncryptedStore) DeleteSchedule(id string) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	return err
}

// --- daily limits ---

func (s *EncryptedStore) DailyLimits() ([]domain.DailyLimit, error) {
	rows, err := s.db.Query(`
		SELECT target_id, display_name, limit_min, used_min, last_reset
		FROM daily_limits ORDER BY target_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []domain.DailyLimit
	for rows.Next() {
		var l domain.DailyLimit
		if err := rows.Scan(&l.TargetID, &l.DisplayName, &l.LimitMinutes, &l.UsedMinutes, &l.LastResetDate); err != nil {
			return nil, err
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

func (s *EncryptedStore) SaveDailyLimit(l domain.DailyLimit) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daily_limits
		(target_id, display_name, limit_min, used_min, last_reset)
		VALUES (?, ?, ?, ?, ?)`,
		l.TargetID, l.DisplayName, l.LimitMinutes, l.UsedMinutes, l.LastResetDate)
	return err
}

func (s *EncryptedStore) DeleteDailyLimit(targetID string) error {
	_, err := s.db.Exec(`DELETE FROM daily_limits WHERE target_id = ?`, targetID)
	return err
}

// --- focus session singleton ---

func (s *EncryptedStore) CurrentSession() (*domain.FocusSession, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM current_session WHERE id = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess domain.FocusSession
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("malformed current session: %w", err)
	}
	return &sess, nil
}

func (s *EncryptedStore) SaveCurrentSession(sess *domain.FocusSession) error {
	if sess == nil {
		_, err := s.db.Exec(`DELETE FROM current_session WHERE id = 1`)
		return err
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO current_session (id, payload) VALUES (1, ?)`, string(payload))
	return err
}

// --- verification tasks ---

func (s *EncryptedStore) TaskForSession(sessionID string) (*domain.VerificationTask, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM tasks WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t domain.VerificationTask
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("malformed task for session %s: %w", sessionID, err)
	}
	return &t, nil
}

func (s *EncryptedStore) SaveTask(t domain.VerificationTask) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO tasks (id, session_id, payload) VALUES (?, ?, ?)`,
		t.ID, t.SessionID, string(payload))
	return err
}

// --- session history ---

func (s *EncryptedStore) History() ([]domain.LockInRecord, error) {
	rows, err := s.db.Query(`SELECT payload FROM history ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.LockInRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r domain.LockInRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("malformed history record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// AppendHistory inserts the record and evicts the oldest entries beyond the
// cap in the same transaction.
func (s *EncryptedStore) AppendHistory(r domain.LockInRecord) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO history (id, started_at, payload) VALUES (?, ?, ?)`,
		r.ID, r.StartedAt.Unix(), string(payload)); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM history WHERE id NOT IN
		(SELECT id FROM history ORDER BY started_at DESC LIMIT ?)`, historyCap); err != nil {
		return err
	}
	return tx.Commit()
}

// --- wallet ledger ---

func (s *EncryptedStore) AppendLedgerEvent(e domain.LedgerEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO ledger (source, amount, target_id, note, ts) VALUES (?, ?, ?, ?, ?)`,
		e.Source, e.Amount, e.TargetID, e.Note, e.Timestamp.Unix())
	return err
}

func (s *EncryptedStore) LedgerEvents(since time.Time) ([]domain.LedgerEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, source, amount, target_id, note, ts FROM ledger
		WHERE ts >= ? ORDER BY id`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.LedgerEvent
	for rows.Next() {
		var e domain.LedgerEvent
		var ts int64
		if err := rows.Scan(&e.ID, &e.Source, &e.Amount, &e.TargetID, &e.Note, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Balance folds the whole ledger; the balance is never stored as a scalar.
func (s *EncryptedStore) Balance() (int, error) {
	var balance int
	err := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM ledger`).Scan(&balance)
	return balance, err
}

// --- usage baselines ---

func (s *EncryptedStore) UsageBaseline(date string) (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT target_id, foreground_ms FROM usage_baseline WHERE date = ?`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	baseline := make(map[string]int64)
	for rows.Next() {
		var target string
		var ms int64
		if err := rows.Scan(&target, &ms); err != nil {
			return nil, err
		}
		baseline[target] = ms
	}
	return baseline, rows.Err()
}

func (s *EncryptedStore) SaveUsageBaseline(date, targetID string, foregroundMs int64) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO usage_baseline (date, target_id, foreground_ms) VALUES (?, ?, ?)`,
		date, targetID, foregroundMs)
	return err
}

// --- scheduled lock-ins ---

func (s *EncryptedStore) ScheduledLockIns() ([]domain.ScheduledLockIn, error) {
	rows, err := s.db.Query(`SELECT payload FROM scheduled_lockins ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lockins []domain.ScheduledLockIn
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var l domain.ScheduledLockIn
		if err := json.Unmarshal([]byte(payload), &l); err != nil {
			return nil, fmt.Errorf("malformed scheduled lock-in: %w", err)
		}
		lockins = append(lockins, l)
	}
	return lockins, rows.Err()
}

func (s *EncryptedStore) SaveScheduledLockIn(l domain.ScheduledLockIn) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO scheduled_lockins (id, payload) VALUES (?, ?)`,
		l.ID, string(payload))
	return err
}

// --- meta ---

func (s *EncryptedStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *EncryptedStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Close closes the underlying database connection.
func (s *EncryptedStore) Close() error {
	return s.db.Close()
}

// GetDBPath returns the database file path (for tests).
func (s *EncryptedStore) GetDBPath() string {
	return s.dbPath
}

// Ensure EncryptedStore implements domain.Store.
var _ domain.Store = (*EncryptedStore)(nil)
