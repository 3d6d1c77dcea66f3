package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "bountydesk/pkg/domain"
	"bountydesk/pkg/platform/sentinel"
)

// PostgresStore persists principals in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, p *Principal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, kind, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, password_hash = EXCLUDED.password_hash
	`,
		uuid.UUID(p.ID),
		string(p.Kind),
		p.Name,
		strings.ToLower(p.Email),
		p.PasswordHash,
		p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save principal: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, principalID id.PrincipalID) (*Principal, error) {
	return s.find(ctx, `
		SELECT id, kind, name, email, password_hash, created_at
		FROM principals WHERE id = $1
	`, uuid.UUID(principalID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	return s.find(ctx, `
		SELECT id, kind, name, email, password_hash, created_at
		FROM principals WHERE email = $1
	`, strings.ToLower(email))
}

func (s *PostgresStore) Delete(ctx context.Context, principalID id.PrincipalID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, uuid.UUID(principalID))
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) find(ctx context.Context, query string, arg any) (*Principal, error) {
	var (
		p   Principal
		pid uuid.UUID
		k   string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&pid, &k, &p.Name, &p.Email, &p.PasswordHash, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query principal: %w", err)
	}
	p.ID = id.PrincipalID(pid)
	p.Kind = Kind(k)
	return &p, nil
}

// isUniqueViolation matches postgres error code 23505 without importing the
// driver's error types everywhere.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
