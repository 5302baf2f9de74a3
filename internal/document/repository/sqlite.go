package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	is_public     INTEGER NOT NULL DEFAULT 0,
	created_by    TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	last_modified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(created_by, last_modified DESC);
CREATE INDEX IF NOT EXISTS idx_documents_public ON documents(is_public, last_modified DESC);
`

const documentColumns = `id, title, is_public, created_by, created_at, last_modified`

// SQLiteRepo implements Repository on an embedded SQLite database. Times are
// stored as unix milliseconds.
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo creates the schema when missing.
func NewSQLiteRepo(ctx context.Context, db *sql.DB) (*SQLiteRepo, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite migrate documents: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		d            document.Document
		id           string
		public       int
		created, mod int64
	)
	if err := row.Scan(&id, &d.Title, &public, &d.CreatedBy, &created, &mod); err != nil {
		return nil, err
	}
	d.ID = document.ID(id)
	d.IsPublic = public != 0
	d.CreatedAt = fromMillis(created)
	d.LastModified = fromMillis(mod)
	return &d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *SQLiteRepo) Create(ctx context.Context, d *document.Document) error {
	if d.ID == "" {
		d.ID = document.NewID()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		string(d.ID), d.Title, boolInt(d.IsPublic), d.CreatedBy, toMillis(d.CreatedAt), toMillis(d.LastModified))
	if err != nil {
		return fmt.Errorf("sqlite insert document: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id document.ID) (*document.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, string(id))
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite get document: %w", err)
	}
	return d, nil
}

func sqliteWhere(f Filter) (string, []any) {
	if f.Public {
		return "is_public = 1", nil
	}
	return "created_by = ?", []any{f.Owner}
}

func (r *SQLiteRepo) query(ctx context.Context, where string, args []any) ([]*document.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+where+` ORDER BY last_modified DESC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query documents: %w", err)
	}
	defer rows.Close()
	out := []*document.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) List(ctx context.Context, f Filter) ([]*document.Document, error) {
	where, args := sqliteWhere(f)
	return r.query(ctx, where, args)
}

// Search matches titles in Go: SQLite's lower() folds ASCII only, so a LIKE
// filter would miss non-ASCII terms.
func (r *SQLiteRepo) Search(ctx context.Context, f Filter, terms []string) ([]*document.Document, error) {
	if len(terms) == 0 {
		return []*document.Document{}, nil
	}
	where, args := sqliteWhere(f)
	candidates, err := r.query(ctx, where, args)
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, d := range candidates {
		if document.MatchesTitle(d.Title, terms) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *SQLiteRepo) Update(ctx context.Context, id document.ID, p document.Patch) (*document.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var title, public any
	if p.Title != nil {
		title = *p.Title
	}
	if p.IsPublic != nil {
		public = boolInt(*p.IsPublic)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET
			title = COALESCE(?, title),
			is_public = COALESCE(?, is_public),
			last_modified = MAX(last_modified, ?)
		WHERE id = ?`, title, public, toMillis(p.LastModified), string(id))
	if err != nil {
		return nil, fmt.Errorf("sqlite update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	d, err := scanDocument(tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, string(id)))
	if err != nil {
		return nil, fmt.Errorf("sqlite reload document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite commit: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepo) Touch(ctx context.Context, id document.ID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET last_modified = MAX(last_modified, ?) WHERE id = ?`, toMillis(at), string(id))
	if err != nil {
		return fmt.Errorf("sqlite touch document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, id document.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("sqlite delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
