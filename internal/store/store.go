// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists reports per thread in SQLite. Every save adds a new
// version; Load returns the latest. Cited paper metadata is kept in its own
// table so a thread's bibliography can be read without decoding reports.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/report-engine/pkg/types"
)

const (
	indexDir  = "index"
	exportDir = "exports"
	dbFile    = "reports.db"
)

// Store manages the report database.
type Store struct {
	db      *sql.DB
	dataDir string
	now     func() time.Time
}

// Version describes one saved report version.
type Version struct {
	ThreadID  string    `json:"thread_id" yaml:"thread_id"`
	Version   int       `json:"version" yaml:"version"`
	Title     string    `json:"title" yaml:"title"`
	Sections  int       `json:"sections" yaml:"sections"`
	Cost      float64   `json:"cost" yaml:"cost"`
	Tokens    int       `json:"tokens" yaml:"tokens"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewStore opens or creates the database at dataDir/index/reports.db and
// creates the schema if it does not exist.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dataDir: cfg.DataDir, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			thread_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			title TEXT,
			body TEXT NOT NULL,
			sections INTEGER NOT NULL,
			cost REAL NOT NULL,
			tokens INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT,
			authors TEXT,
			year INTEGER,
			citation_count INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS citations (
			thread_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			section INTEGER NOT NULL,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			PRIMARY KEY (thread_id, version, section, paper_id),
			FOREIGN KEY (thread_id, version) REFERENCES reports(thread_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_paper_id ON citations(paper_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Load returns the latest report of threadID, or *types.ReportNotFoundError.
func (s *Store) Load(ctx context.Context, threadID string) (*types.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM reports WHERE thread_id = ? ORDER BY version DESC LIMIT 1`, threadID,
	).Scan(&body)
	return decodeReport(threadID, body, err)
}

// LoadVersion returns one saved version of threadID.
func (s *Store) LoadVersion(ctx context.Context, threadID string, version int) (*types.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM reports WHERE thread_id = ? AND version = ?`, threadID, version,
	).Scan(&body)
	return decodeReport(threadID, body, err)
}

func decodeReport(threadID, body string, err error) (*types.Report, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.ReportNotFoundError{ThreadID: threadID}
	}
	if err != nil {
		return nil, fmt.Errorf("loading report %s: %w", threadID, err)
	}
	var r types.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", threadID, err)
	}
	return &r, nil
}

// Save stores r as the next version of threadID.
func (s *Store) Save(ctx context.Context, threadID string, r *types.Report) error {
	_, err := s.SaveVersion(ctx, threadID, r)
	return err
}

// SaveVersion is Save that also returns the new version number.
func (s *Store) SaveVersion(ctx context.Context, threadID string, r *types.Report) (int, error) {
	if threadID == "" {
		return 0, &types.ValidationError{Field: "thread_id", Reason: "required to save a report"}
	}
	body, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("encoding report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM reports WHERE thread_id = ?`, threadID,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("reading next version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (thread_id, version, title, body, sections, cost, tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		threadID, version, r.Title, string(body), len(r.Sections), r.Cost, r.Tokens.Total,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting report: %w", err)
	}

	if err := s.indexCitations(ctx, tx, threadID, version, r); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing report: %w", err)
	}
	return version, nil
}

func (s *Store) indexCitations(ctx context.Context, tx *sql.Tx, threadID string, version int, r *types.Report) error {
	upsert, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (id, title, authors, year, citation_count)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=COALESCE(NULLIF(excluded.title, ''), papers.title),
			authors=CASE WHEN excluded.authors = 'null' THEN papers.authors ELSE excluded.authors END,
			year=MAX(excluded.year, papers.year),
			citation_count=MAX(excluded.citation_count, papers.citation_count)`)
	if err != nil {
		return fmt.Errorf("preparing paper upsert: %w", err)
	}
	defer upsert.Close()

	link, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO citations (thread_id, version, section, paper_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing citation insert: %w", err)
	}
	defer link.Close()

	for i, sec := range r.Sections {
		for _, c := range sec.Citations {
			authorsJSON, _ := json.Marshal(c.Authors)
			if _, err := upsert.ExecContext(ctx, c.PaperID, c.Title, string(authorsJSON), c.Year, c.CitationCount); err != nil {
				return fmt.Errorf("upserting paper %s: %w", c.PaperID, err)
			}
			if _, err := link.ExecContext(ctx, threadID, version, i, c.PaperID); err != nil {
				return fmt.Errorf("linking paper %s: %w", c.PaperID, err)
			}
		}
	}
	return nil
}

// History lists the versions of threadID, oldest first.
func (s *Store) History(ctx context.Context, threadID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, version, title, sections, cost, tokens, created_at
		 FROM reports WHERE thread_id = ? ORDER BY version`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &types.ReportNotFoundError{ThreadID: threadID}
	}
	return versions, nil
}

// Threads lists the latest version of every thread, most recent first.
func (s *Store) Threads(ctx context.Context) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.thread_id, r.version, r.title, r.sections, r.cost, r.tokens, r.created_at
		 FROM reports r
		 JOIN (SELECT thread_id, MAX(version) AS version FROM reports GROUP BY thread_id) latest
		   ON r.thread_id = latest.thread_id AND r.version = latest.version
		 ORDER BY r.created_at DESC, r.thread_id`)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	return scanVersions(rows)
}

func scanVersions(rows *sql.Rows) ([]Version, error) {
	defer rows.Close()
	var out []Version
	for rows.Next() {
		var (
			v       Version
			title   sql.NullString
			created string
		)
		if err := rows.Scan(&v.ThreadID, &v.Version, &title, &v.Sections, &v.Cost, &v.Tokens, &created); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		v.Title = title.String
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// CitingThreads returns the threads whose latest version cites paperID.
func (s *Store) CitingThreads(ctx context.Context, paperID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT c.thread_id
		 FROM citations c
		 JOIN (SELECT thread_id, MAX(version) AS version FROM reports GROUP BY thread_id) latest
		   ON c.thread_id = latest.thread_id AND c.version = latest.version
		 WHERE c.paper_id = ?
		 ORDER BY c.thread_id`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying citing threads: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning thread id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Papers returns the metadata of every paper cited by the latest version of
// threadID, ordered by paper id.
func (s *Store) Papers(ctx context.Context, threadID string) ([]types.PaperMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.title, p.authors, p.year, p.citation_count
		 FROM citations c
		 JOIN papers p ON p.id = c.paper_id
		 WHERE c.thread_id = ?
		   AND c.version = (SELECT MAX(version) FROM reports WHERE thread_id = ?)
		 ORDER BY p.id`, threadID, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var out []types.PaperMeta
	for rows.Next() {
		var (
			m       types.PaperMeta
			title   sql.NullString
			authors sql.NullString
			year    sql.NullInt64
			cites   sql.NullInt64
		)
		if err := rows.Scan(&m.PaperID, &title, &authors, &year, &cites); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		m.Title = title.String
		m.Year = int(year.Int64)
		m.CitationCount = int(cites.Int64)
		if authors.Valid {
			_ = json.Unmarshal([]byte(authors.String), &m.Authors)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
