// Package queue projects the admin review queue: the PENDING records of a
// kind, oldest submission first, joined with principal metadata. It is a pure
// read model over the record store; it never writes records.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"bountydesk/internal/platform/metrics"
	"bountydesk/internal/principal"
	"bountydesk/internal/verification"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
	"bountydesk/pkg/platform/sentinel"
)

// Item is one queue row as the reviewer sees it.
type Item struct {
	PrincipalID   id.PrincipalID `json:"principal_id"`
	Kind          models.Kind    `json:"kind"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	EvidenceCount int            `json:"evidence_count"`
	PendingSince  time.Time      `json:"pending_since"`
}

// Projector builds queue snapshots. Reads prefer the cache; the commit paths
// invalidate it synchronously, so a successful decision is never followed by
// a read that still lists the record.
type Projector struct {
	records    verification.Store
	principals principal.Store
	cache      Cache
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewProjector(records verification.Store, principals principal.Store, cache Cache, logger *slog.Logger, m *metrics.Metrics) *Projector {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Projector{
		records:    records,
		principals: principals,
		cache:      cache,
		logger:     logger,
		metrics:    m,
	}
}

// ListPending returns the review queue for a kind, ordered by the timestamp
// of each record's entry into PENDING, oldest first.
func (p *Projector) ListPending(ctx context.Context, kind models.Kind) ([]Item, error) {
	if !kind.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown verification kind")
	}

	items, generation, ok := p.cache.Get(ctx, kind)
	if ok {
		return items, nil
	}

	records, err := p.records.ListByStatus(ctx, kind, models.StatusPending)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "queue projection timed out")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "record store unavailable")
		}
	}

	items, err = p.join(ctx, records)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PendingSince.Before(items[j].PendingSince)
	})

	// Stamped with the generation observed before the store read: if a commit
	// invalidated the cache in between, this write is stale and Get will
	// refuse to serve it.
	p.cache.Set(ctx, kind, items, generation)
	if p.metrics != nil {
		p.metrics.SetPendingDepth(string(kind), len(items))
	}
	return items, nil
}

// Invalidate bumps the cache generation for a kind, retiring any snapshot
// taken before the bump, including one still in flight between a store read
// and its Set. The decision and intake services call it inside their commit
// paths.
func (p *Projector) Invalidate(ctx context.Context, kind models.Kind) {
	p.cache.Invalidate(ctx, kind)
}

// join fans out the principal metadata lookups. A principal missing from the
// directory does not sink the whole queue; the row ships with blank metadata
// and a warning.
func (p *Projector) join(ctx context.Context, records []*models.VerificationRecord) ([]Item, error) {
	items := make([]Item, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, record := range records {
		g.Go(func() error {
			since, ok := record.PendingSince()
			if !ok {
				// ListByStatus raced a commit; the record is no longer
				// pending and is dropped below via the zero timestamp check.
				return nil
			}
			item := Item{
				PrincipalID:   record.PrincipalID,
				Kind:          record.Kind,
				EvidenceCount: len(record.Evidence),
				PendingSince:  since,
			}
			pr, err := p.principals.FindByID(gctx, record.PrincipalID)
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				p.logger.WarnContext(gctx, "pending record has no principal",
					"principal_id", record.PrincipalID.String())
			case err != nil:
				return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "principal directory unavailable")
			default:
				item.Name = pr.Name
				item.Email = pr.Email
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := items[:0]
	for _, item := range items {
		if !item.PendingSince.IsZero() {
			out = append(out, item)
		}
	}
	return out, nil
}
