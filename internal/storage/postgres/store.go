// Package postgres stores team snapshots in PostgreSQL so that every node
// of a cluster sees the same teams after a restart.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/storage"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Storage on a poker_teams table.
type Store struct {
	db    querier
	clock poker.Clock
}

var _ storage.Storage = (*Store)(nil)

// New creates a Store on an open connection pool.
func New(pool *pgxpool.Pool, opts ...storage.Option) *Store {
	return &Store{db: pool, clock: storage.ApplyOptions(opts...)}
}

// LoadTeam reads and decodes the snapshot for name.
func (s *Store) LoadTeam(ctx context.Context, name string) (*poker.Team, error) {
	query := `
		SELECT snapshot
		FROM poker_teams
		WHERE name_key = $1
	`

	var data []byte
	err := s.db.QueryRow(ctx, query, poker.NameKey(name)).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to load team %s", name)
	}

	team, err := poker.UnmarshalTeam(data, poker.WithClock(s.clock))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode team %s", name)
	}
	return team, nil
}

// SaveTeam upserts the snapshot for team.
func (s *Store) SaveTeam(ctx context.Context, team *poker.Team) error {
	data, err := json.Marshal(team)
	if err != nil {
		return errors.Wrapf(err, "failed to encode team %s", team.Name())
	}

	query := `
		INSERT INTO poker_teams (name_key, name, snapshot, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name_key) DO UPDATE
		SET name = EXCLUDED.name, snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.Exec(ctx, query, poker.NameKey(team.Name()), team.Name(), data, s.clock.Now())
	if err != nil {
		return errors.Wrapf(err, "failed to save team %s", team.Name())
	}
	return nil
}

// DeleteTeam removes the named team.
func (s *Store) DeleteTeam(ctx context.Context, name string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM poker_teams WHERE name_key = $1`, poker.NameKey(name))
	if err != nil {
		return errors.Wrapf(err, "failed to delete team %s", name)
	}
	return nil
}

// DeleteAll removes every team.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM poker_teams`); err != nil {
		return errors.Wrap(err, "failed to delete teams")
	}
	return nil
}

// TeamNames lists stored team names in sorted order.
func (s *Store) TeamNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT name FROM poker_teams ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list teams")
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan team names")
	}
	return names, nil
}
