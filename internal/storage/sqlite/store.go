// Package sqlite persists documents and QA history in an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
	"github.com/fyrsmithlabs/copyvara/internal/storage/sqlite/migrations"
)

// DatabaseFile is the file created inside the data directory.
const DatabaseFile = "copyvara.db"

// Store implements storage.Store on SQLite.
type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// NewStore opens (creating if needed) the database in dataDir and applies
// pending migrations. An empty dataDir means ~/.local/share/copyvara.
func NewStore(dataDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share", "copyvara")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath, now: time.Now, logger: logger}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("sqlite store opened", zap.String("path", dbPath))
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies NNN_name.up.sql files newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", zap.String("name", name))
	}
	return nil
}

const documentColumns = `id, source_type, title, raw_text, summary, bullets, tags,
	knowledge_score, action_plan, segments, viz_data, status, created_at`

// ListDocuments implements storage.DocumentStore.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]knowledge.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents ORDER BY created_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []knowledge.Document{}
	now := s.now()
	for rows.Next() {
		doc, err := scanDocument(rows, now)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// GetDocument implements storage.DocumentStore.
func (s *Store) GetDocument(ctx context.Context, id string) (knowledge.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return knowledge.Document{}, storage.ErrNotFound
	}
	return doc, err
}

// SaveDocument implements storage.DocumentStore. Existing IDs are updated
// in place.
func (s *Store) SaveDocument(ctx context.Context, doc knowledge.Document) (knowledge.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	row, err := knowledge.NewDocumentRow(doc)
	if err != nil {
		return knowledge.Document{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, workspace_id, source_type, title, raw_text, summary, bullets, tags,
			knowledge_score, action_plan, segments, viz_data, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_type = excluded.source_type,
			title = excluded.title,
			raw_text = excluded.raw_text,
			summary = excluded.summary,
			bullets = excluded.bullets,
			tags = excluded.tags,
			knowledge_score = excluded.knowledge_score,
			action_plan = excluded.action_plan,
			segments = excluded.segments,
			viz_data = excluded.viz_data,
			status = excluded.status
	`,
		doc.ID, knowledge.DefaultWorkspaceID, string(doc.SourceType), doc.Title, doc.RawText, doc.SummaryText,
		string(row.Bullets), string(row.Tags), doc.KnowledgeScore,
		nullableJSON(row.ActionPlan), nullableJSON(row.Segments), nullableJSON(row.VizData),
		string(doc.Status), *row.CreatedAt,
	)
	if err != nil {
		return knowledge.Document{}, fmt.Errorf("saving document: %w", err)
	}
	return doc, nil
}

// ClearDocuments implements storage.DocumentStore.
func (s *Store) ClearDocuments(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	return nil
}

// ListSessions implements storage.HistoryStore.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]knowledge.QASession, error) {
	query := "SELECT id, question, answer, evidence, created_at FROM qa_history ORDER BY created_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []knowledge.QASession{}
	now := s.now()
	for rows.Next() {
		var id, question, answer, evidence, created string
		if err := rows.Scan(&id, &question, &answer, &evidence, &created); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		idJSON, _ := json.Marshal(id)
		row := knowledge.SessionRow{
			ID:        idJSON,
			Question:  &question,
			Answer:    &answer,
			Evidence:  json.RawMessage(evidence),
			CreatedAt: &created,
		}
		sessions = append(sessions, row.ToSession(now))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// SaveSession implements storage.HistoryStore.
func (s *Store) SaveSession(ctx context.Context, session knowledge.QASession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	row, err := knowledge.NewSessionRow(session)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO qa_history (id, question, answer, evidence, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			evidence = excluded.evidence
	`, session.ID, session.Question, session.Answer, string(row.Evidence), *row.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// ClearSessions implements storage.HistoryStore.
func (s *Store) ClearSessions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM qa_history"); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner, now time.Time) (knowledge.Document, error) {
	var (
		id, source, title, rawText, summary, bullets, tags, status, created string
		score                                                               int
		plan, segments, viz                                                 sql.NullString
	)
	err := sc.Scan(&id, &source, &title, &rawText, &summary, &bullets, &tags,
		&score, &plan, &segments, &viz, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return knowledge.Document{}, err
	}
	if err != nil {
		return knowledge.Document{}, fmt.Errorf("scanning document: %w", err)
	}

	idJSON, _ := json.Marshal(id)
	row := knowledge.DocumentRow{
		ID:             idJSON,
		Title:          &title,
		RawText:        &rawText,
		Summary:        &summary,
		Bullets:        json.RawMessage(bullets),
		Tags:           json.RawMessage(tags),
		KnowledgeScore: json.RawMessage(fmt.Sprint(score)),
		ActionPlan:     rawOrNil(plan),
		Segments:       rawOrNil(segments),
		VizData:        rawOrNil(viz),
		SourceType:     &source,
		Status:         &status,
		CreatedAt:      &created,
	}
	return row.ToDocument(now), nil
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ storage.Store = (*Store)(nil)
