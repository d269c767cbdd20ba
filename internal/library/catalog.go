package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/metcalfc/aeonsight/internal/reader"
	"gopkg.in/yaml.v3"
)

// CatalogVersion is written into every export.
const CatalogVersion = 1

// Catalog is the portable export of the library. It carries metadata,
// positions, bookmarks and notes, never raw bytes.
type Catalog struct {
	Version    int       `json:"version" yaml:"version"`
	ExportedAt time.Time `json:"exportedAt" yaml:"exportedAt"`
	Items      []Item    `json:"items" yaml:"items"`
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Added []string
	// Skipped ids were already present and left untouched.
	Skipped []string
	// Invalid entries had no id or an unknown format.
	Invalid int
	// MissingContent lists added items whose bytes must be re-added.
	MissingContent []string
}

// Export returns the whole catalog, newest first.
func (s *Store) Export(ctx context.Context) (Catalog, error) {
	items, err := s.List(ctx)
	if err != nil {
		return Catalog{}, err
	}
	if items == nil {
		items = []Item{}
	}
	return Catalog{Version: CatalogVersion, ExportedAt: s.now().UTC(), Items: items}, nil
}

// Import merges c into the library by id. Items already present are
// skipped, never overwritten.
func (s *Store) Import(ctx context.Context, c Catalog) (ImportResult, error) {
	var res ImportResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Walk oldest first so the catalog's head ends up at the library's head.
	for i := len(c.Items) - 1; i >= 0; i-- {
		item := c.Items[i]
		if strings.TrimSpace(item.ID) == "" {
			res.Invalid++
			continue
		}
		if _, err := reader.ParseFormat(string(item.Format)); err != nil {
			s.logger.Printf("library: import %s: %v", item.ID, err)
			res.Invalid++
			continue
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = ?)`, item.ID).Scan(&exists); err != nil {
			return res, fmt.Errorf("check %s: %w", item.ID, err)
		}
		if exists {
			res.Skipped = append(res.Skipped, item.ID)
			continue
		}

		pos, err := encodePosition(item.LastPosition)
		if err != nil {
			return res, err
		}
		added := item.AddedAt
		if added.IsZero() {
			added = s.now()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, name, format, added_at, progress, last_position, content_hash, size, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM items))`,
			item.ID, item.Name, string(item.Format), toMillis(added), max(0, min(100, item.Progress)),
			pos, item.ContentHash, item.Size)
		if err != nil {
			return res, fmt.Errorf("import %s: %w", item.ID, err)
		}
		for _, b := range item.Bookmarks {
			enc, err := encodePosition(b.Position)
			if err != nil {
				return res, err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bookmarks (item_id, created_at, label, position) VALUES (?, ?, ?, ?)`,
				item.ID, toMillis(b.CreatedAt), b.Label, enc); err != nil {
				return res, fmt.Errorf("import bookmark: %w", err)
			}
		}
		for _, n := range item.Notes {
			enc, err := encodePosition(n.Position)
			if err != nil {
				return res, err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO notes (item_id, created_at, position, text) VALUES (?, ?, ?, ?)`,
				item.ID, toMillis(n.CreatedAt), enc, n.Text); err != nil {
				return res, fmt.Errorf("import note: %w", err)
			}
		}

		var hasContent bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM blobs WHERE item_id = ?)`, item.ID).Scan(&hasContent); err != nil {
			return res, err
		}
		res.Added = append(res.Added, item.ID)
		if !hasContent {
			res.MissingContent = append(res.MissingContent, item.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	reverse(res.Added)
	reverse(res.Skipped)
	reverse(res.MissingContent)
	s.logger.Printf("library: imported %d items, skipped %d", len(res.Added), len(res.Skipped))
	return res, nil
}

func reverse(ids []string) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// Encoding names a catalog file format.
type Encoding string

const (
	JSON Encoding = "json"
	YAML Encoding = "yaml"
)

// EncodingFromName picks an encoding from a file name, defaulting to JSON.
func EncodingFromName(name string) Encoding {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return YAML
	}
	return JSON
}

// WriteCatalog encodes c to w.
func WriteCatalog(w io.Writer, c Catalog, enc Encoding) error {
	if enc == YAML {
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(c); err != nil {
			return fmt.Errorf("encode catalog: %w", err)
		}
		return e.Close()
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(c); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return nil
}

// ReadCatalog decodes a catalog from r.
func ReadCatalog(r io.Reader, enc Encoding) (Catalog, error) {
	var c Catalog
	var err error
	if enc == YAML {
		err = yaml.NewDecoder(r).Decode(&c)
	} else {
		err = json.NewDecoder(r).Decode(&c)
	}
	if err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if c.Version > CatalogVersion {
		return Catalog{}, fmt.Errorf("catalog version %d is newer than supported version %d", c.Version, CatalogVersion)
	}
	return c, nil
}
