// Package journal records ledger events for off-chain indexers: every event
// is logged and, when Redis is configured, RPushed as JSON onto the vault's
// event list. Consumed sign ids are mirrored with SET NX so indexers and
// restarting processes share one view of the replay set.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Journal is safe for use from any vault; it never mutates ledger state and
// a publish failure never aborts the operation that produced the event.
type Journal struct {
	rdb *redis.Client // nil → log-only
	log *zap.Logger
	now func() int64
}

func New(rdb *redis.Client, log *zap.Logger) *Journal {
	return &Journal{rdb: rdb, log: log, now: func() int64 { return time.Now().Unix() }}
}

// Emit publishes ev. Fire-and-forget: errors are logged, not returned.
func (j *Journal) Emit(ctx context.Context, ev Event) {
	if ev.Time == 0 {
		ev.Time = j.now()
	}
	j.log.Info("ledger event",
		zap.String("vault", ev.Vault),
		zap.String("kind", string(ev.Kind)),
		zap.String("asset", ev.Asset.Hex()),
		zap.Stringer("value", ev.Value),
	)
	if j.rdb == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		j.log.Error("journal: marshal event", zap.Error(err))
		return
	}
	queueKey := fmt.Sprintf(EventQueueKeyFmt, ev.Vault)
	if err := j.rdb.RPush(ctx, queueKey, string(raw)).Err(); err != nil {
		j.log.Error("journal: rpush event", zap.String("queue", queueKey), zap.Error(err))
	}
}

// MirrorSignID mirrors a consumed id to Redis via SET NX. The in-memory
// replay set remains authoritative; the mirror exists for indexer parity
// and reports false when another process already recorded the id.
func (j *Journal) MirrorSignID(ctx context.Context, vault string, id *big.Int) bool {
	if j.rdb == nil {
		return true
	}
	key := fmt.Sprintf(SignIDKeyFmt, vault, id.String())
	set, err := j.rdb.SetNX(ctx, key, 1, 0).Result()
	if err != nil {
		j.log.Error("journal: mirror sign id", zap.String("key", key), zap.Error(err))
		return true
	}
	return set
}
