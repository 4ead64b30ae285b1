package pg

import (
	"context"
	"database/sql"
	"errors"

	"crewgate.org/internal/features"
)

var _ features.Store = (*Store)(nil)

func (s *Store) GetToggle(ctx context.Context, key string) (features.Toggle, error) {
	if s.db == nil {
		return features.Toggle{}, errors.New("database connection unavailable")
	}
	var (
		t    features.Toggle
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select key, enabled, description, updated_at
		from feature_toggles where key = $1
	`, key).Scan(&t.Key, &t.Enabled, &desc, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return features.Toggle{}, features.ErrNotFound
	}
	if err != nil {
		return features.Toggle{}, err
	}
	t.Description = desc.String
	return t, nil
}

func (s *Store) SetToggle(ctx context.Context, key string, enabled bool) (features.Toggle, error) {
	if s.db == nil {
		return features.Toggle{}, errors.New("database connection unavailable")
	}
	var (
		t    features.Toggle
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		insert into feature_toggles (key, enabled, updated_at)
		values ($1, $2, now())
		on conflict (key) do update set enabled = excluded.enabled, updated_at = now()
		returning key, enabled, description, updated_at
	`, key, enabled).Scan(&t.Key, &t.Enabled, &desc, &t.UpdatedAt)
	if err != nil {
		return features.Toggle{}, err
	}
	t.Description = desc.String
	return t, nil
}

func (s *Store) ListToggles(ctx context.Context) ([]features.Toggle, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select key, enabled, description, updated_at
		from feature_toggles order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []features.Toggle
	for rows.Next() {
		var (
			t    features.Toggle
			desc sql.NullString
		)
		if err := rows.Scan(&t.Key, &t.Enabled, &desc, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Description = desc.String
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
