package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

func (r *SQLiteRepository) GetResource(ctx context.Context, identifier string, typ model.ResourceType) (model.Resource, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT identifier, type, json, updated_at
		FROM resources WHERE identifier = ? AND type = ?`, identifier, string(typ))
	var out model.Resource
	var rtype, blob, updated string
	if err := row.Scan(&out.Identifier, &rtype, &blob, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Resource{}, ErrNotFound
		}
		return model.Resource{}, err
	}
	updatedAt, err := parseRequiredTime(updated)
	if err != nil {
		return model.Resource{}, err
	}
	out.Type = model.ResourceType(rtype)
	out.JSON = json.RawMessage(blob)
	out.UpdatedAt = updatedAt
	return out, nil
}

func (r *SQLiteRepository) PutResource(ctx context.Context, in model.Resource) error {
	if err := in.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resources (identifier, type, json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identifier, type) DO UPDATE SET json = excluded.json, updated_at = excluded.updated_at`,
		in.Identifier, string(in.Type), string(in.JSON), mustTime(in.UpdatedAt),
	)
	return err
}

func (r *SQLiteRepository) DeleteResource(ctx context.Context, identifier string, typ model.ResourceType) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE identifier = ? AND type = ?`, identifier, string(typ))
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}
