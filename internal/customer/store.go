// Package customer persists per-dealership customer interaction history and
// serves it to the routing engine as CustomerContext.
package customer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dealerlink/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ContextStore, domain.OfflineMessageStore, and
// domain.StatusJournal on a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		dealership_id   TEXT NOT NULL,
		customer_id     TEXT NOT NULL,
		preferred_agent TEXT,
		satisfaction    REAL,
		updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (dealership_id, customer_id)
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		dealership_id TEXT NOT NULL,
		customer_id   TEXT NOT NULL,
		content       TEXT,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_cust ON interactions(dealership_id, customer_id, created_at);

	CREATE TABLE IF NOT EXISTS escalations (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		dealership_id TEXT NOT NULL,
		customer_id   TEXT NOT NULL,
		reason        TEXT,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_cust ON escalations(dealership_id, customer_id);

	CREATE TABLE IF NOT EXISTS sms_optouts (
		dealership_id TEXT NOT NULL,
		phone         TEXT NOT NULL,
		opted_out     INTEGER NOT NULL DEFAULT 0,
		updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (dealership_id, phone)
	);

	CREATE TABLE IF NOT EXISTS offline_messages (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		dealership_id TEXT NOT NULL,
		session_id    TEXT NOT NULL,
		payload       BLOB NOT NULL,
		delivered     INTEGER NOT NULL DEFAULT 0,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_offline_session ON offline_messages(dealership_id, session_id, delivered);

	CREATE TABLE IF NOT EXISTS delivery_status (
		external_id   TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		error_code    TEXT,
		error_message TEXT,
		updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- domain.ContextStore ---

const contextHistoryLimit = 10

func (s *SQLiteStore) GetCustomerContext(ctx context.Context, dealershipID, customerID string) (*domain.CustomerContext, error) {
	cc := &domain.CustomerContext{
		CustomerID:   customerID,
		DealershipID: dealershipID,
	}

	var preferred sql.NullString
	var satisfaction sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT preferred_agent, satisfaction FROM customers WHERE dealership_id = ? AND customer_id = ?`,
		dealershipID, customerID,
	).Scan(&preferred, &satisfaction)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load customer profile: %w", err)
	}
	if preferred.Valid {
		cc.PreferredAgent = preferred.String
	}
	if satisfaction.Valid {
		cc.SatisfactionScore = satisfaction.Float64
		cc.HasSatisfaction = true
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT content, created_at FROM interactions
		 WHERE dealership_id = ? AND customer_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		dealershipID, customerID, contextHistoryLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	defer rows.Close()

	var timestamps []time.Time
	for rows.Next() {
		var content string
		var at time.Time
		if err := rows.Scan(&content, &at); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		// newest first from the query; prepend to restore arrival order
		cc.PreviousMessages = append([]string{content}, cc.PreviousMessages...)
		timestamps = append(timestamps, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	if len(timestamps) > 0 {
		cc.LastInteraction = timestamps[0]
		if len(timestamps) > 1 {
			total := timestamps[0].Sub(timestamps[len(timestamps)-1])
			cc.AvgResponseTime = total / time.Duration(len(timestamps)-1)
		}
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE dealership_id = ? AND customer_id = ?`,
		dealershipID, customerID,
	).Scan(&cc.InteractionCount); err != nil {
		return nil, fmt.Errorf("count interactions: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalations WHERE dealership_id = ? AND customer_id = ?`,
		dealershipID, customerID,
	).Scan(&cc.EscalationHistory); err != nil {
		return nil, fmt.Errorf("count escalations: %w", err)
	}

	return cc, nil
}

func (s *SQLiteStore) RecordInteraction(ctx context.Context, dealershipID, customerID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (dealership_id, customer_id, content, created_at) VALUES (?, ?, ?, ?)`,
		dealershipID, customerID, message, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO customers (dealership_id, customer_id) VALUES (?, ?)`,
		dealershipID, customerID,
	)
	return err
}

func (s *SQLiteStore) RecordEscalation(ctx context.Context, dealershipID, customerID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (dealership_id, customer_id, reason, created_at) VALUES (?, ?, ?, ?)`,
		dealershipID, customerID, reason, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record escalation: %w", err)
	}
	return nil
}

// SetPreferredAgent pins a customer to an agent for history-based routing.
func (s *SQLiteStore) SetPreferredAgent(ctx context.Context, dealershipID, customerID, agent string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (dealership_id, customer_id, preferred_agent) VALUES (?, ?, ?)
		 ON CONFLICT (dealership_id, customer_id) DO UPDATE SET preferred_agent = excluded.preferred_agent`,
		dealershipID, customerID, agent,
	)
	return err
}

// SetSatisfaction records the latest satisfaction score (1-5).
func (s *SQLiteStore) SetSatisfaction(ctx context.Context, dealershipID, customerID string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (dealership_id, customer_id, satisfaction) VALUES (?, ?, ?)
		 ON CONFLICT (dealership_id, customer_id) DO UPDATE SET satisfaction = excluded.satisfaction`,
		dealershipID, customerID, score,
	)
	return err
}

func (s *SQLiteStore) SetOptOut(ctx context.Context, dealershipID, phone string, optedOut bool) error {
	flag := 0
	if optedOut {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sms_optouts (dealership_id, phone, opted_out, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (dealership_id, phone) DO UPDATE SET opted_out = excluded.opted_out, updated_at = excluded.updated_at`,
		dealershipID, phone, flag, time.Now(),
	)
	return err
}

func (s *SQLiteStore) IsOptedOut(ctx context.Context, dealershipID, phone string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx,
		`SELECT opted_out FROM sms_optouts WHERE dealership_id = ? AND phone = ?`,
		dealershipID, phone,
	).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup opt-out: %w", err)
	}
	return flag == 1, nil
}

// --- domain.OfflineMessageStore ---

func (s *SQLiteStore) StoreOffline(ctx context.Context, dealershipID, sessionID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offline_messages (dealership_id, session_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		dealershipID, sessionID, payload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store offline message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DrainOffline(ctx context.Context, dealershipID, sessionID string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM offline_messages
		 WHERE dealership_id = ? AND session_id = ? AND delivered = 0
		 ORDER BY id`,
		dealershipID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load offline messages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	var payloads [][]byte
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan offline message: %w", err)
		}
		ids = append(ids, id)
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offline messages: %w", err)
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE offline_messages SET delivered = 1 WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("mark offline message delivered: %w", err)
		}
	}
	return payloads, nil
}

// --- domain.StatusJournal ---

func (s *SQLiteStore) RecordStatus(ctx context.Context, externalID string, status domain.DeliveryStatus, errCode, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_status (external_id, status, error_code, error_message, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
		   status = excluded.status, error_code = excluded.error_code,
		   error_message = excluded.error_message, updated_at = excluded.updated_at`,
		externalID, string(status), errCode, errMsg, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record delivery status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LookupStatus(ctx context.Context, externalID string) (domain.DeliveryStatus, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM delivery_status WHERE external_id = ?`, externalID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup delivery status: %w", err)
	}
	return domain.DeliveryStatus(status), true, nil
}
