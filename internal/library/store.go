// Package library is the persisted catalog of documents: raw bytes, last
// positions, bookmarks and notes.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/metcalfc/aeonsight/internal/reader"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned for ids that are not in the catalog.
	ErrNotFound = errors.New("item not found")

	// ErrContentMissing is returned for imported items whose bytes were
	// never attached.
	ErrContentMissing = errors.New("item content is missing; add the file again")
)

// Item is one catalog entry. Raw bytes are never part of it.
type Item struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Format       reader.Format   `json:"format" yaml:"format"`
	AddedAt      time.Time       `json:"addedAt" yaml:"addedAt"`
	Progress     int             `json:"progressPercent" yaml:"progressPercent"`
	LastPosition reader.Position `json:"lastPosition" yaml:"lastPosition"`
	ContentHash  string          `json:"contentHash,omitempty" yaml:"contentHash,omitempty"`
	Size         int64           `json:"size,omitempty" yaml:"size,omitempty"`
	Bookmarks    []Bookmark      `json:"bookmarks" yaml:"bookmarks"`
	Notes        []Note          `json:"notes" yaml:"notes"`
	HasContent   bool            `json:"-" yaml:"-"`
}

// Bookmark is a labelled position.
type Bookmark struct {
	CreatedAt time.Time       `json:"timestamp" yaml:"timestamp"`
	Label     string          `json:"label" yaml:"label"`
	Position  reader.Position `json:"position" yaml:"position"`
}

// Note is free text attached to a position.
type Note struct {
	CreatedAt time.Time       `json:"timestamp" yaml:"timestamp"`
	Position  reader.Position `json:"position" yaml:"position"`
	Text      string          `json:"text" yaml:"text"`
}

// Store provides persistence for the catalog using SQLite.
type Store struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// Open opens or creates the catalog database at path. Use ":memory:" for
// a throwaway catalog.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps db and initializes the schema.
func NewStore(db *sql.DB, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		format TEXT NOT NULL,
		added_at INTEGER NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		last_position TEXT NOT NULL DEFAULT '{}',
		content_hash TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blobs (
		item_id TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		label TEXT NOT NULL,
		position TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		position TEXT NOT NULL,
		text TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_seq ON items(seq);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_item ON bookmarks(item_id);
	CREATE INDEX IF NOT EXISTS idx_notes_item ON notes(item_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func encodePosition(p reader.Position) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodePosition(s string) (reader.Position, error) {
	var p reader.Position
	if s == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(s), &p)
	return p, err
}

// Add stores data as a new item at the head of the catalog.
func (s *Store) Add(ctx context.Context, name string, format reader.Format, data []byte) (Item, error) {
	if _, err := reader.ParseFormat(string(format)); err != nil {
		return Item{}, err
	}
	item := Item{
		ID:          uuid.New().String(),
		Name:        name,
		Format:      format,
		AddedAt:     fromMillis(toMillis(s.now())),
		ContentHash: ContentHash(data),
		Size:        int64(len(data)),
		HasContent:  true,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, name, format, added_at, progress, last_position, content_hash, size, seq)
		VALUES (?, ?, ?, ?, 0, '{}', ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM items))`,
		item.ID, item.Name, string(item.Format), toMillis(item.AddedAt), item.ContentHash, item.Size)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO blobs (item_id, data) VALUES (?, ?)`, item.ID, data); err != nil {
		return Item{}, fmt.Errorf("insert content: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit: %w", err)
	}
	s.logger.Printf("library: added %s (%s, %d bytes)", item.ID, item.Format, item.Size)
	return item, nil
}

const itemColumns = `i.id, i.name, i.format, i.added_at, i.progress, i.last_position, i.content_hash, i.size,
	EXISTS (SELECT 1 FROM blobs b WHERE b.item_id = i.id)`

type scanner interface {
	Scan(dest ...any) error
}

// scanItem reads one row. Rows with an unknown format or an unparseable
// position are reported as corrupt.
func scanItem(row scanner) (Item, error) {
	var (
		item     Item
		format   string
		addedAt  int64
		position string
	)
	if err := row.Scan(&item.ID, &item.Name, &format, &addedAt, &item.Progress, &position,
		&item.ContentHash, &item.Size, &item.HasContent); err != nil {
		return Item{}, err
	}
	f, err := reader.ParseFormat(format)
	if err != nil {
		return item, fmt.Errorf("corrupt entry %s: %w", item.ID, err)
	}
	item.Format = f
	item.AddedAt = fromMillis(addedAt)
	if item.LastPosition, err = decodePosition(position); err != nil {
		return item, fmt.Errorf("corrupt entry %s: position: %w", item.ID, err)
	}
	return item, nil
}

// Get returns an item with its bookmarks and notes.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Item{}, err
	}
	if err := s.loadAnnotations(ctx, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// List returns every readable item, newest first, with bookmarks and
// notes. Corrupt entries are logged and left out.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items i ORDER BY i.seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			s.logger.Printf("library: skipping %v", err)
			continue
		}
		items = append(items, item)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		if err := s.loadAnnotations(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Store) loadAnnotations(ctx context.Context, item *Item) error {
	item.Bookmarks = []Bookmark{}
	item.Notes = []Note{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, label, position FROM bookmarks WHERE item_id = ? ORDER BY id`, item.ID)
	if err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	for rows.Next() {
		var (
			b   Bookmark
			at  int64
			pos string
		)
		if err := rows.Scan(&at, &b.Label, &pos); err != nil {
			rows.Close()
			return err
		}
		if b.Position, err = decodePosition(pos); err != nil {
			s.logger.Printf("library: skipping bookmark of %s: %v", item.ID, err)
			continue
		}
		b.CreatedAt = fromMillis(at)
		item.Bookmarks = append(item.Bookmarks, b)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT created_at, position, text FROM notes WHERE item_id = ? ORDER BY id`, item.ID)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			n   Note
			at  int64
			pos string
		)
		if err := rows.Scan(&at, &pos, &n.Text); err != nil {
			return err
		}
		if n.Position, err = decodePosition(pos); err != nil {
			s.logger.Printf("library: skipping note of %s: %v", item.ID, err)
			continue
		}
		n.CreatedAt = fromMillis(at)
		item.Notes = append(item.Notes, n)
	}
	return rows.Err()
}

// Content returns the raw bytes of an item.
func (s *Store) Content(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE item_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("%w: %s", ErrContentMissing, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	return data, nil
}

// Remove deletes an item with its bytes, bookmarks and notes.
func (s *Store) Remove(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, q := range []string{
		`DELETE FROM blobs WHERE item_id = ?`,
		`DELETE FROM bookmarks WHERE item_id = ?`,
		`DELETE FROM notes WHERE item_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete item data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Printf("library: removed %s", id)
	return nil
}

// Clear removes every item. It returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM items`)
	if err != nil {
		return 0, fmt.Errorf("clear items: %w", err)
	}
	n, _ := res.RowsAffected()
	for _, q := range []string{`DELETE FROM blobs`, `DELETE FROM bookmarks`, `DELETE FROM notes`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, fmt.Errorf("clear item data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Printf("library: cleared %d items", n)
	return int(n), nil
}

// SavePosition records the last position and progress of an item. Saves
// for removed items fail with ErrNotFound and change nothing.
func (s *Store) SavePosition(ctx context.Context, id string, pos reader.Position, progress int) error {
	enc, err := encodePosition(pos)
	if err != nil {
		return err
	}
	progress = max(0, min(100, progress))
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET last_position = ?, progress = ? WHERE id = ?`, enc, progress, id)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// AddBookmark appends a labelled position to an item.
func (s *Store) AddBookmark(ctx context.Context, id string, pos reader.Position, label string) (Bookmark, error) {
	b := Bookmark{CreatedAt: fromMillis(toMillis(s.now())), Label: label, Position: pos}
	if err := s.insertAnnotation(ctx, id,
		`INSERT INTO bookmarks (item_id, created_at, label, position) SELECT id, ?, ?, ? FROM items WHERE id = ?`,
		b.CreatedAt, label, pos); err != nil {
		return Bookmark{}, err
	}
	return b, nil
}

// AddNote attaches text to a position of an item.
func (s *Store) AddNote(ctx context.Context, id string, pos reader.Position, text string) (Note, error) {
	n := Note{CreatedAt: fromMillis(toMillis(s.now())), Position: pos, Text: text}
	if err := s.insertAnnotation(ctx, id,
		`INSERT INTO notes (item_id, created_at, text, position) SELECT id, ?, ?, ? FROM items WHERE id = ?`,
		n.CreatedAt, text, pos); err != nil {
		return Note{}, err
	}
	return n, nil
}

// insertAnnotation runs an INSERT ... SELECT that only matches existing
// items, so annotations never outlive their item.
func (s *Store) insertAnnotation(ctx context.Context, id, query string, at time.Time, text string, pos reader.Position) error {
	enc, err := encodePosition(pos)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, toMillis(at), text, enc, id)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Attach stores bytes for an item imported without them.
func (s *Store) Attach(ctx context.Context, id string, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE items SET content_hash = ?, size = ? WHERE id = ?`,
		ContentHash(data), len(data), id)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blobs (item_id, data) VALUES (?, ?) ON CONFLICT(item_id) DO UPDATE SET data = excluded.data`,
		id, data); err != nil {
		return fmt.Errorf("store content: %w", err)
	}
	return tx.Commit()
}
