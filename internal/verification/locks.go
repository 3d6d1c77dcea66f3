package verification

import (
	"context"
	"sync"
	"time"

	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
)

// recordLocks serializes all mutating calls for the same (principal, kind)
// pair. Instead of a single global lock, operations are distributed across N
// shards based on a hash of the record key, so calls on different records
// almost never block each other while calls on the same record always do.
const numRecordShards = 128

// defaultLockTimeout bounds how long a caller may hold or wait for a shard.
const defaultLockTimeout = 5 * time.Second

// RecordLocks is the per-record critical section used by the decision service
// and the intake adapter. The store's version compare-and-set backs it up:
// even a lock bypass cannot double-commit.
type RecordLocks struct {
	shards  [numRecordShards]sync.Mutex
	timeout time.Duration
}

// NewRecordLocks creates the lock set. A zero timeout selects the default.
func NewRecordLocks(timeout time.Duration) *RecordLocks {
	return &RecordLocks{timeout: timeout}
}

// Do runs fn while holding the shard for (principal, kind). The context is
// given a deadline if it has none; cancellation is checked before and after
// lock acquisition so a cancelled caller never reaches the store.
func (l *RecordLocks) Do(ctx context.Context, principalID id.PrincipalID, kind models.Kind, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}

	timeout := l.timeout
	if timeout == 0 {
		timeout = defaultLockTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := shardFor(principalID, kind)
	l.shards[shard].Lock()
	defer l.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}

	return fn(ctx)
}

func shardFor(principalID id.PrincipalID, kind models.Kind) int {
	return int(hashRecordKey(principalID.String()+"/"+string(kind)) % numRecordShards)
}

// hashRecordKey uses FNV-1a for good distribution across shards.
func hashRecordKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
