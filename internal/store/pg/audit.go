package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"crewgate.org/internal/audit"
	"crewgate.org/internal/ids"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if entry.ID == "" {
		entry.ID = ids.NewPrefixed("aud")
	}
	metaJSON := []byte("{}")
	if len(entry.Metadata) > 0 {
		bytes, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, occurred_at, actor_user_id, action, resource_type, resource_id, metadata, request_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.OccurredAt, nullIfEmpty(entry.ActorUserID), entry.Action,
		nullIfEmpty(entry.ResourceType), nullIfEmpty(entry.ResourceID), metaJSON, nullIfEmpty(entry.RequestID))
	return err
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, occurred_at, actor_user_id, action, resource_type, resource_id, metadata, request_id
		from audit_logs
		order by occurred_at desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			e                             audit.Entry
			actor, rtype, rid, requestID  sql.NullString
			rawMeta                       []byte
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &actor, &e.Action, &rtype, &rid, &rawMeta, &requestID); err != nil {
			return nil, err
		}
		e.ActorUserID = actor.String
		e.ResourceType = rtype.String
		e.ResourceID = rid.String
		e.RequestID = requestID.String
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
