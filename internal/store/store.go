package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cascade/internal/cms"
	"cascade/internal/elementid"
	"cascade/internal/glossary"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

type Editor struct {
	ID        string `json:"id"`
	GoogleSub string `json:"google_sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return cms.ErrNotFound
	}
	return err
}

func (s *Store) UpsertEditor(ctx context.Context, sub, email, name, avatar string) (Editor, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO editors (google_sub, email, name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (google_sub)
		DO UPDATE SET email=EXCLUDED.email, name=EXCLUDED.name, avatar_url=EXCLUDED.avatar_url
		RETURNING id, google_sub, email, name, avatar_url
	`, sub, email, name, avatar)
	var e Editor
	if err := row.Scan(&e.ID, &e.GoogleSub, &e.Email, &e.Name, &e.AvatarURL); err != nil {
		return Editor{}, err
	}
	return e, nil
}

func (s *Store) GetEditorBySub(ctx context.Context, sub string) (Editor, error) {
	row := s.DB.QueryRow(ctx, `SELECT id, google_sub, email, name, avatar_url FROM editors WHERE google_sub=$1`, sub)
	var e Editor
	if err := row.Scan(&e.ID, &e.GoogleSub, &e.Email, &e.Name, &e.AvatarURL); err != nil {
		return Editor{}, notFound(err)
	}
	return e, nil
}

func (s *Store) GetEditorByID(ctx context.Context, id string) (Editor, error) {
	row := s.DB.QueryRow(ctx, `SELECT id, google_sub, email, name, avatar_url FROM editors WHERE id=$1`, id)
	var e Editor
	if err := row.Scan(&e.ID, &e.GoogleSub, &e.Email, &e.Name, &e.AvatarURL); err != nil {
		return Editor{}, notFound(err)
	}
	return e, nil
}

func (s *Store) GetSite(ctx context.Context, id int64) (cms.Site, error) {
	row := s.DB.QueryRow(ctx, `SELECT id, domain, name FROM sites WHERE id=$1`, id)
	var site cms.Site
	if err := row.Scan(&site.ID, &site.Domain, &site.Name); err != nil {
		return cms.Site{}, notFound(err)
	}
	return site, nil
}

func scanPage(row pgx.Row) (cms.Page, error) {
	var p cms.Page
	var raw []byte
	if err := row.Scan(&p.ID, &p.SiteID, &p.Title, &p.Path, &p.IsDraft, &raw); err != nil {
		return cms.Page{}, notFound(err)
	}
	g, err := glossary.ParsePage(raw)
	if err != nil {
		return cms.Page{}, fmt.Errorf("page %d: %w", p.ID, err)
	}
	p.Glossary = g
	return p, nil
}

func (s *Store) GetPage(ctx context.Context, id int64) (cms.Page, error) {
	return scanPage(s.DB.QueryRow(ctx, `
		SELECT id, site_id, title, path, publisher_is_draft, glossary
		FROM pages WHERE id=$1
	`, id))
}

// DraftPages lists the draft pages of a site ordered by path.
func (s *Store) DraftPages(ctx context.Context, siteID int64) ([]cms.Page, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, site_id, title, path, publisher_is_draft, glossary
		FROM pages
		WHERE site_id=$1 AND publisher_is_draft
		ORDER BY path, id
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := []cms.Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// PageExists reports whether model/pk names an existing page. Models other than
// pages are never found.
func (s *Store) PageExists(ctx context.Context, model string, pk int64) (bool, error) {
	if model != glossary.PageModel {
		return false, nil
	}
	var exists bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pages WHERE id=$1)`, pk).Scan(&exists)
	return exists, err
}

// ListPageIDs returns the ids of pages whose glossary records element ids.
func (s *Store) ListPageIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM pages WHERE glossary ? 'element_ids' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) PageGlossary(ctx context.Context, pageID int64) (glossary.Page, error) {
	var raw []byte
	if err := s.DB.QueryRow(ctx, `SELECT glossary FROM pages WHERE id=$1`, pageID).Scan(&raw); err != nil {
		return glossary.Page{}, notFound(err)
	}
	return glossary.ParsePage(raw)
}

// pageTx is the page row held by UpdatePageGlossary.
type pageTx struct {
	tx     pgx.Tx
	pageID int64
}

func (p pageTx) SaveInstanceGlossary(ctx context.Context, inst cms.PluginInstance) error {
	return saveInstanceGlossary(ctx, p.tx, inst)
}

func (p pageTx) InstanceKeys(ctx context.Context) ([]string, error) {
	return instanceKeys(ctx, p.tx, p.pageID)
}

// UpdatePageGlossary runs fn on the page glossary inside a transaction that holds
// the page row locked, and writes the result back when fn succeeds. Instance writes
// made through the tx passed to fn share the transaction.
func (s *Store) UpdatePageGlossary(ctx context.Context, pageID int64, fn func(elementid.PageTx, *glossary.Page) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var raw []byte
	if err = tx.QueryRow(ctx, `SELECT glossary FROM pages WHERE id=$1 FOR UPDATE`, pageID).Scan(&raw); err != nil {
		err = notFound(err)
		return err
	}
	pg, err := glossary.ParsePage(raw)
	if err != nil {
		return err
	}
	if err = fn(pageTx{tx: tx, pageID: pageID}, &pg); err != nil {
		return err
	}
	b, err := json.Marshal(pg)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `UPDATE pages SET glossary=$1 WHERE id=$2`, b, pageID); err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}
