// Package database, yerel SQLite cache bağlantısını ve migration'ları yönetir.
//
// Cache sadece hız içindir: dosya silinirse client bir sonraki refresh'te
// her şeyi sunucudan yeniden çeker. Bu yüzden migration'lar basit tutulur,
// şema değişikliği yeni bir NNN_*.sql dosyasıdır.
package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver: CGO gerekmez
)

// DB, veritabanı bağlantısını saran struct.
type DB struct {
	Conn *sql.DB
}

// New, SQLite dosyasını açar ve uygulanmamış migration'ları çalıştırır.
// dbPath ":memory:" ise bellek içi veritabanı kullanılır (testler).
func New(dbPath string, migrationsFS fs.FS) (*DB, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Tek yazar: SQLite'ta paralel yazma "database is locked" üretir,
	// ":memory:" ise bağlantı başına ayrı veritabanı demektir.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{Conn: conn}
	if err := db.runMigrations(migrationsFS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("[database] opened %s", dbPath)
	return db, nil
}

// Open, gömülü migration'larla New çağırır.
func Open(dbPath string) (*DB, error) {
	sub, err := fs.Sub(EmbeddedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return New(dbPath, sub)
}

// Close, veritabanı bağlantısını kapatır.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// runMigrations, *.sql dosyalarını ad sırasıyla (001_, 002_, ...) çalıştırır.
// Uygulananlar schema_migrations tablosunda tutulur; her dosya bir kez çalışır.
func (db *DB) runMigrations(migrationsFS fs.FS) error {
	if _, err := db.Conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied, err := db.appliedMigrations()
	if err != nil {
		return err
	}

	for _, file := range files {
		if applied[file] {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		for i, stmt := range splitStatements(string(content)) {
			if _, err := db.Conn.Exec(stmt); err != nil {
				return fmt.Errorf("failed to execute migration %s (statement %d): %w", file, i+1, err)
			}
		}

		if _, err := db.Conn.Exec("INSERT INTO schema_migrations (filename) VALUES (?)", file); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", file, err)
		}
		log.Printf("[database] migration applied: %s", file)
	}

	return nil
}

func (db *DB) appliedMigrations() (map[string]bool, error) {
	rows, err := db.Conn.Query("SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// splitStatements, SQL metnini ';' ile böler. Tek tırnaklı string
// literal'lerin ve "--" satır yorumlarının içindeki ';' yoksayılır.
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString, inComment := false, false

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			statements = append(statements, s)
		}
		current.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		switch {
		case inComment:
			if ch == '\n' {
				inComment = false
				current.WriteByte(ch)
			}
			continue
		case !inString && ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			inComment = true
			i++
			continue
		case ch == '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				current.WriteString("''")
				i++
				continue
			}
			inString = !inString
		case ch == ';' && !inString:
			flush()
			continue
		}

		current.WriteByte(ch)
	}
	flush()

	return statements
}
