package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	"bountydesk/pkg/platform/sentinel"
)

// PostgresStore persists verification records in PostgreSQL. The record row
// and its history rows are written in one transaction so state and history
// land together or not at all. Optimistic concurrency rides on the version
// column: UPDATE ... WHERE version = $expect.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *models.VerificationRecord) error {
	evidence, err := marshalEvidence(record.Evidence)
	if err != nil {
		return err
	}

	now := time.Now()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO verification_records (
			principal_id, kind, status, evidence, evidence_updated_at,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
		ON CONFLICT (principal_id, kind) DO NOTHING
	`,
		uuid.UUID(record.PrincipalID),
		string(record.Kind),
		string(record.Status),
		evidence,
		nullTime(record.EvidenceUpdatedAt),
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert verification record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}

	if err := insertHistory(ctx, tx, record, 0); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}

	record.Version = 1
	record.CreatedAt = createdAt
	record.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, principalID id.PrincipalID, kind models.Kind) (*models.VerificationRecord, error) {
	record := &models.VerificationRecord{
		PrincipalID: principalID,
		Kind:        kind,
	}

	var (
		status            string
		evidence          []byte
		evidenceUpdatedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT status, evidence, evidence_updated_at, version, created_at, updated_at
		FROM verification_records
		WHERE principal_id = $1 AND kind = $2
	`, uuid.UUID(principalID), string(kind)).Scan(
		&status, &evidence, &evidenceUpdatedAt,
		&record.Version, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query verification record: %w", err)
	}

	record.Status = models.Status(status)
	if evidenceUpdatedAt.Valid {
		record.EvidenceUpdatedAt = evidenceUpdatedAt.Time
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &record.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
	}

	record.History, err = s.loadHistory(ctx, principalID, kind)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *models.VerificationRecord, expectVersion int64) error {
	evidence, err := marshalEvidence(record.Evidence)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE verification_records
		SET status = $1, evidence = $2, evidence_updated_at = $3,
		    version = version + 1, updated_at = $4
		WHERE principal_id = $5 AND kind = $6 AND version = $7
	`,
		string(record.Status),
		evidence,
		nullTime(record.EvidenceUpdatedAt),
		now,
		uuid.UUID(record.PrincipalID),
		string(record.Kind),
		expectVersion,
	)
	if err != nil {
		return fmt.Errorf("update verification record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish a lost compare-and-set from a missing record.
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM verification_records
				WHERE principal_id = $1 AND kind = $2
			)
		`, uuid.UUID(record.PrincipalID), string(record.Kind)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check verification record existence: %w", err)
		}
		if exists {
			return sentinel.ErrConflict
		}
		return sentinel.ErrNotFound
	}

	var stored int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verification_history
		WHERE principal_id = $1 AND kind = $2
	`, uuid.UUID(record.PrincipalID), string(record.Kind)).Scan(&stored)
	if err != nil {
		return fmt.Errorf("count history rows: %w", err)
	}
	if err := insertHistory(ctx, tx, record, stored); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}

	record.Version = expectVersion + 1
	record.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, kind models.Kind, status models.Status) ([]*models.VerificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT principal_id FROM verification_records
		WHERE kind = $1 AND status = $2
	`, string(kind), string(status))
	if err != nil {
		return nil, fmt.Errorf("query records by status: %w", err)
	}
	defer rows.Close()

	var principalIDs []id.PrincipalID
	for rows.Next() {
		var pid uuid.UUID
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("scan principal id: %w", err)
		}
		principalIDs = append(principalIDs, id.PrincipalID(pid))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records by status: %w", err)
	}

	records := make([]*models.VerificationRecord, 0, len(principalIDs))
	for _, pid := range principalIDs {
		record, err := s.Get(ctx, pid, kind)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue // decided between the two queries
			}
			return nil, err
		}
		if record.Status == status {
			records = append(records, record)
		}
	}
	return records, nil
}

// insertHistory appends the transitions at index >= from. History is
// append-only; existing rows are never touched.
func insertHistory(ctx context.Context, tx *sql.Tx, record *models.VerificationRecord, from int) error {
	for i := from; i < len(record.History); i++ {
		entry := record.History[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO verification_history (
				id, principal_id, kind, seq, from_status, to_status, actor, at, note
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uuid.New(),
			uuid.UUID(record.PrincipalID),
			string(record.Kind),
			i,
			string(entry.From),
			string(entry.To),
			string(entry.Actor),
			entry.At,
			entry.Note,
		)
		if err != nil {
			return fmt.Errorf("insert history row: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) loadHistory(ctx context.Context, principalID id.PrincipalID, kind models.Kind) ([]models.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_status, to_status, actor, at, note
		FROM verification_history
		WHERE principal_id = $1 AND kind = $2
		ORDER BY seq ASC
	`, uuid.UUID(principalID), string(kind))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []models.Transition
	for rows.Next() {
		var (
			entry    models.Transition
			from, to string
			actor    string
		)
		if err := rows.Scan(&from, &to, &actor, &entry.At, &entry.Note); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.From = models.Status(from)
		entry.To = models.Status(to)
		entry.Actor = models.Actor(actor)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

func marshalEvidence(evidence []id.DocumentRef) ([]byte, error) {
	if len(evidence) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return data, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
