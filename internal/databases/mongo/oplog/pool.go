package oplog

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/mongodb/mongo-tools-common/db"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

const commandOp = "c"

// WorkerPool applies independent groups of ops concurrently.
type WorkerPool struct {
	workers int
}

// NewWorkerPool builds WorkerPool, at least one worker is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers}
}

// Workers ...
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Run calls fn for every group and waits for all of them.
// The first failure cancels groups which are not started yet.
func (p *WorkerPool) Run(ctx context.Context, groups []models.Batch, fn ApplyFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, ops := range groups {
		ops := ops
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, ops)
		})
	}
	return g.Wait()
}

// Partition splits ops into at most n groups, ops touching the same document land
// in the same group in their original order.
func Partition(ops models.Batch, n int) ([]models.Batch, error) {
	if n < 1 {
		n = 1
	}
	buckets := make([]models.Batch, n)
	for _, op := range ops {
		key, err := documentKey(op)
		if err != nil {
			return nil, err
		}
		h := fnv.New32a()
		_, _ = h.Write(key)
		idx := h.Sum32() % uint32(n)
		buckets[idx] = append(buckets[idx], op)
	}

	groups := make([]models.Batch, 0, n)
	for _, b := range buckets {
		if len(b) > 0 {
			groups = append(groups, b)
		}
	}
	return groups, nil
}

// documentKey returns namespace and _id of the document modified by op.
// Ops without _id are keyed by namespace only.
func documentKey(entry models.OplogEntry) ([]byte, error) {
	op := db.Oplog{}
	if err := bson.Unmarshal(entry.Data, &op); err != nil {
		return nil, fmt.Errorf("can not unmarshall oplog entry %s: %w", entry.TS, err)
	}

	doc := op.Object
	if op.Operation == "u" {
		doc = op.Query
	}
	key := []byte(op.Namespace)
	for _, e := range doc {
		if e.Key != "_id" {
			continue
		}
		_, idBytes, err := bson.MarshalValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("can not marshal _id of oplog entry %s: %w", entry.TS, err)
		}
		key = append(append(key, 0), idBytes...)
		break
	}
	return key, nil
}

func isBarrier(entry models.OplogEntry) bool {
	return entry.OP == commandOp
}
