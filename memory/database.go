package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	// 存在しなかったらディレクトリを作成
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// HTTPサーバーから並行に書き込まれるので接続は1本に絞る
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{db: db}

	if err := database.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) initTables() error {
	sessionsTableSQL := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		dataset TEXT NOT NULL,
		model_used TEXT NOT NULL
	);`

	if _, err := d.db.Exec(sessionsTableSQL); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	messagesTableSQL := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		timestamp TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT,
		category TEXT,
		tool_calls TEXT,
		artifacts TEXT
	);`

	if _, err := d.db.Exec(messagesTableSQL); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	indexSQL := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_dataset ON sessions(dataset);",
		"CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);",
	}

	for _, index := range indexSQL {
		if _, err := d.db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}
