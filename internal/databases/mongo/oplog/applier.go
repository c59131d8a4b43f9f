package oplog

import (
	"context"
	"fmt"
	"time"

	"github.com/mongodb/mongo-tools-common/db"
	"github.com/wal-g/initsync/internal/databases/mongo/client"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/tracelog"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	_ = []Observer{ObserverFunc(nil)}
)

// ApplyFunc applies given ops in order.
type ApplyFunc func(ctx context.Context, ops []models.OplogEntry) error

// BatchResult describes one apply attempt of a batch.
type BatchResult struct {
	Ops         int
	Bytes       int
	FirstOpTime models.OpTime
	LastOpTime  models.OpTime
	Duration    time.Duration
	Err         error
}

// Observer is notified after every apply attempt of a non-empty batch.
type Observer interface {
	OnBatchApplied(result BatchResult)
}

// ObserverFunc adapts ordinary function to Observer.
type ObserverFunc func(result BatchResult)

// OnBatchApplied ...
func (f ObserverFunc) OnBatchApplied(result BatchResult) {
	f(result)
}

// MultiApplier applies batches through worker pool and reports the last applied optime.
type MultiApplier struct {
	pool    *WorkerPool
	applyFn ApplyFunc
}

// NewMultiApplier builds MultiApplier.
func NewMultiApplier(pool *WorkerPool, applyFn ApplyFunc) *MultiApplier {
	return &MultiApplier{pool: pool, applyFn: applyFn}
}

// Apply runs the whole batch and returns optime of its last entry.
// Commands are applied alone, other ops are fanned out keeping per-document order.
func (ma *MultiApplier) Apply(ctx context.Context, batch models.Batch, observer Observer) (models.OpTime, error) {
	if len(batch) == 0 {
		return models.OpTime{}, models.ErrEmptyBatch
	}

	start := time.Now()
	err := ma.apply(ctx, batch)
	res := BatchResult{
		Ops:         len(batch),
		Bytes:       batch.Bytes(),
		FirstOpTime: batch[0].OpTime(),
		LastOpTime:  batch[len(batch)-1].OpTime(),
		Duration:    time.Since(start),
		Err:         err,
	}
	if observer != nil {
		observer.OnBatchApplied(res)
	}
	if err != nil {
		return models.OpTime{}, err
	}

	tracelog.DebugLogger.Printf("Applied batch of %d ops up to %s in %v", res.Ops, res.LastOpTime, res.Duration)
	return res.LastOpTime, nil
}

func (ma *MultiApplier) apply(ctx context.Context, batch models.Batch) error {
	var pending models.Batch
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		groups, err := Partition(pending, ma.pool.Workers())
		if err != nil {
			return err
		}
		pending = nil
		return ma.classify(ctx, ma.pool.Run(ctx, groups, ma.applyFn))
	}

	for i := range batch {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("batch apply canceled before op %s: %w", batch[i].TS, err)
		}
		if !isBarrier(batch[i]) {
			pending = append(pending, batch[i])
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := ma.classify(ctx, ma.applyFn(ctx, batch[i:i+1])); err != nil {
			return err
		}
	}
	return flush()
}

func (ma *MultiApplier) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("batch apply canceled: %w", ctxErr)
	}
	return models.WrapError(models.ApplyFailure, err, "")
}

// NewDBApplyFunc builds ApplyFunc which runs every op with applyOps command.
func NewDBApplyFunc(m client.MongoDriver) ApplyFunc {
	return func(ctx context.Context, ops []models.OplogEntry) error {
		for i := range ops {
			op := db.Oplog{}
			if err := bson.Unmarshal(ops[i].Data, &op); err != nil {
				return fmt.Errorf("can not unmarshall oplog entry: %w", err)
			}
			tracelog.DebugLogger.Printf("Applier received op %s (%s on %s)", ops[i].TS, op.Operation, op.Namespace)
			if err := m.ApplyOp(ctx, op); err != nil {
				return fmt.Errorf("apply op (%v %s on %s) failed with: %w", op.Timestamp, op.Operation, op.Namespace, err)
			}
		}
		return nil
	}
}
