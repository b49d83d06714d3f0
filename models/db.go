package models

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	AppVersion = "1.0.0"

	dbFileName = "Documents.db"
	filesDir   = "files"
)

// OpenDB opens the document database under basePath, creating the directory
// and schema on first use.
func OpenDB(basePath string) (*sql.DB, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	dbPath := filepath.Join(basePath, dbFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := setupDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}
	return db, nil
}

func setupDatabase(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS "Documents" (
			"ID" TEXT NOT NULL UNIQUE,
			"PatientID" TEXT NOT NULL,
			"FileName" TEXT NOT NULL,
			"ContentType" TEXT,
			"FilePath" TEXT NOT NULL,
			"Hash" TEXT,
			"Size" INTEGER,
			"Created" TEXT,
			PRIMARY KEY("ID")
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patient ON Documents (PatientID)`,
		`CREATE INDEX IF NOT EXISTS idx_Hash ON Documents (Hash)`,
		`CREATE TABLE IF NOT EXISTS "System" (
			"AppVersion" TEXT,
			"SQLiteLibraryVersion" TEXT
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM System").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		var sqliteVersion string
		if err := db.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
			return err
		}
		if _, err := db.Exec("INSERT INTO System (AppVersion, SQLiteLibraryVersion) VALUES (?, ?)",
			AppVersion, sqliteVersion); err != nil {
			return err
		}
	}
	return nil
}

// SystemInfo is the single row of the System table.
type SystemInfo struct {
	AppVersion           string `json:"appVersion"`
	SQLiteLibraryVersion string `json:"sqliteLibraryVersion"`
}

func GetSystemInfo(ctx context.Context, db *sql.DB) (*SystemInfo, error) {
	var info SystemInfo
	err := db.QueryRowContext(ctx, "SELECT AppVersion, SQLiteLibraryVersion FROM System LIMIT 1").
		Scan(&info.AppVersion, &info.SQLiteLibraryVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read system info: %w", err)
	}
	return &info, nil
}
