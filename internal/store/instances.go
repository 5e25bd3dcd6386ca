package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cascade/internal/cms"
	"cascade/internal/glossary"
)

const instanceColumns = `id, COALESCE(page_id, 0), plugin_type, position, glossary, created_at, updated_at`

func scanInstance(row pgx.Row) (cms.PluginInstance, error) {
	var inst cms.PluginInstance
	var raw []byte
	if err := row.Scan(&inst.ID, &inst.PageID, &inst.PluginType, &inst.Position, &raw, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return cms.PluginInstance{}, notFound(err)
	}
	g, err := glossary.ParseInstance(raw)
	if err != nil {
		return cms.PluginInstance{}, fmt.Errorf("plugin %d: %w", inst.ID, err)
	}
	inst.Glossary = g
	return inst, nil
}

func nullablePage(pageID int64) any {
	if pageID == 0 {
		return nil
	}
	return pageID
}

func (s *Store) GetInstance(ctx context.Context, id int64) (cms.PluginInstance, error) {
	return scanInstance(s.DB.QueryRow(ctx, `SELECT `+instanceColumns+` FROM plugin_instances WHERE id=$1`, id))
}

func (s *Store) ListInstances(ctx context.Context, pageID int64) ([]cms.PluginInstance, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM plugin_instances
		WHERE page_id=$1
		ORDER BY position, id
	`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []cms.PluginInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inst)
	}
	return items, rows.Err()
}

// querier is the part of pgxpool.Pool and pgx.Tx the instance queries need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// instanceKeys returns the element_ids keys of the instances placed on a page.
func instanceKeys(ctx context.Context, q querier, pageID int64) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT id FROM plugin_instances WHERE page_id=$1`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		keys = append(keys, strconv.FormatInt(id, 10))
	}
	return keys, rows.Err()
}

// CreateInstance inserts inst at the end of its page and returns it with its id.
func (s *Store) CreateInstance(ctx context.Context, inst cms.PluginInstance) (cms.PluginInstance, error) {
	b, err := json.Marshal(inst.Glossary)
	if err != nil {
		return cms.PluginInstance{}, err
	}
	return scanInstance(s.DB.QueryRow(ctx, `
		INSERT INTO plugin_instances (page_id, plugin_type, position, glossary)
		VALUES ($1, $2, COALESCE((SELECT MAX(position)+1 FROM plugin_instances WHERE page_id=$1), 0), $3)
		RETURNING `+instanceColumns,
		nullablePage(inst.PageID), inst.PluginType, b))
}

func (s *Store) SaveInstanceGlossary(ctx context.Context, inst cms.PluginInstance) error {
	return saveInstanceGlossary(ctx, s.DB, inst)
}

func saveInstanceGlossary(ctx context.Context, q querier, inst cms.PluginInstance) error {
	b, err := json.Marshal(inst.Glossary)
	if err != nil {
		return err
	}
	ct, err := q.Exec(ctx, `
		UPDATE plugin_instances SET glossary=$1, updated_at=NOW() WHERE id=$2
	`, b, inst.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return cms.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteInstance(ctx context.Context, id int64) (cms.PluginInstance, error) {
	return scanInstance(s.DB.QueryRow(ctx, `
		DELETE FROM plugin_instances WHERE id=$1
		RETURNING `+instanceColumns, id))
}
