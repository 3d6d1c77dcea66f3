package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"bountydesk/internal/audit"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
)

// PostgresStore persists audit entries in an append-only table. Duplicate
// appends (emitter retries racing a slow commit) are absorbed by the
// (principal_id, kind, seq) uniqueness: ON CONFLICT DO NOTHING keeps the
// log exactly-once per committed transition.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, principal_id, kind, seq, from_status, to_status,
			actor, actor_device, request_id, reason, at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (principal_id, kind, seq) DO NOTHING
	`,
		entry.ID,
		uuid.UUID(entry.PrincipalID),
		string(entry.Kind),
		entry.Seq,
		string(entry.FromStatus),
		string(entry.ToStatus),
		string(entry.Actor),
		entry.ActorDevice,
		entry.RequestID,
		entry.Reason,
		entry.At,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPrincipal(ctx context.Context, principalID id.PrincipalID, kind models.Kind) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, from_status, to_status, actor, actor_device, request_id, reason, at
		FROM audit_entries
		WHERE principal_id = $1 AND kind = $2
		ORDER BY seq ASC
	`, uuid.UUID(principalID), string(kind))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		entry := audit.Entry{PrincipalID: principalID, Kind: kind}
		var from, to, actor string
		err := rows.Scan(
			&entry.ID, &entry.Seq, &from, &to,
			&actor, &entry.ActorDevice, &entry.RequestID, &entry.Reason, &entry.At,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.FromStatus = models.Status(from)
		entry.ToStatus = models.Status(to)
		entry.Actor = models.Actor(actor)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
