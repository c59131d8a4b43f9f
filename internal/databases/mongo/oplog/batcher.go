package oplog

import (
	"fmt"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/tracelog"
)

// BatchLimits bounds a single applier batch. Zero value drains everything staged.
type BatchLimits struct {
	MaxOps   int
	MaxBytes int
}

// Batcher forms applier batches out of staged oplog entries.
// Calls against the same buffer must be serialized by the caller.
type Batcher struct {
	limits BatchLimits
}

// NewBatcher builds Batcher.
func NewBatcher(limits BatchLimits) *Batcher {
	return &Batcher{limits: limits}
}

// NextApplierBatch drains all currently staged entries into one validated batch.
func NextApplierBatch(buf Buffer) (models.Batch, error) {
	return NewBatcher(BatchLimits{}).NextBatch(buf)
}

// NextBatch pops entries without waiting for more until buffer is empty or limits are reached.
// Any invalid entry fails the whole batch, popped entries are not returned to the buffer.
// Empty batch with nil error means there is nothing to apply.
func (b *Batcher) NextBatch(buf Buffer) (models.Batch, error) {
	batch := models.Batch{}
	batchBytes := 0
	for b.limits.MaxOps == 0 || len(batch) < b.limits.MaxOps {
		if b.limits.MaxBytes > 0 && len(batch) > 0 {
			next, ok := buf.Peek()
			if !ok {
				break
			}
			if batchBytes+len(next.Data) > b.limits.MaxBytes {
				break
			}
		}

		entry, ok := buf.TryPop()
		if !ok {
			break
		}
		if err := validateEntry(batch, entry); err != nil {
			tracelog.ErrorLogger.PrintError(err)
			return nil, err
		}
		batch = append(batch, entry)
		batchBytes += len(entry.Data)
	}

	if len(batch) > 0 {
		tracelog.DebugLogger.Printf("Formed applier batch of %d ops (%d bytes): %s - %s",
			len(batch), batchBytes, batch[0].OpTime(), batch[len(batch)-1].OpTime())
	}
	return batch, nil
}

func validateEntry(batch models.Batch, entry models.OplogEntry) error {
	if entry.Version != models.SupportedOplogVersion {
		return models.NewError(models.UnsupportedOplogVersion,
			fmt.Sprintf("op %s on %s has version %d, expected %d",
				entry.TS, entry.NS, entry.Version, models.SupportedOplogVersion))
	}
	if len(batch) == 0 {
		return nil
	}
	prev := batch[len(batch)-1].OpTime()
	if !models.LessOpTime(prev, entry.OpTime()) {
		return models.NewError(models.OutOfOrderOplog,
			fmt.Sprintf("op %s follows op %s", entry.OpTime(), prev))
	}
	return nil
}
