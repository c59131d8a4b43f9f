package initsync

import (
	"context"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/initsync/internal/databases/mongo/oplog"
	"github.com/wal-g/initsync/internal/databases/mongo/replstate"
	"github.com/wal-g/initsync/internal/databases/mongo/syncsource"
	"github.com/wal-g/initsync/internal/executor"
	"github.com/wal-g/tracelog"
)

// BufferSettings defines capacity of initial sync oplog buffer.
type BufferSettings struct {
	MaxCount int
	MaxBytes int
	Policy   oplog.BackpressurePolicy
}

// DefaultExternalState is ExternalState backed by in-process replication state and mongo applier.
type DefaultExternalState struct {
	exec      executor.Executor
	state     *replstate.State
	evaluator *syncsource.Evaluator
	batcher   *oplog.Batcher
	applier   *oplog.MultiApplier
	bufferCfg BufferSettings
}

// NewDefaultExternalState builds DefaultExternalState.
func NewDefaultExternalState(exec executor.Executor,
	state *replstate.State,
	evaluator *syncsource.Evaluator,
	batcher *oplog.Batcher,
	applier *oplog.MultiApplier,
	bufferCfg BufferSettings) *DefaultExternalState {
	return &DefaultExternalState{
		exec:      exec,
		state:     state,
		evaluator: evaluator,
		batcher:   batcher,
		applier:   applier,
		bufferCfg: bufferCfg,
	}
}

// TaskExecutor ...
func (d *DefaultExternalState) TaskExecutor() executor.Executor {
	return d.exec
}

// CurrentTermAndLastCommittedOpTime ...
func (d *DefaultExternalState) CurrentTermAndLastCommittedOpTime() models.OpTimeWithTerm {
	return d.state.CurrentTermAndLastCommitted()
}

// ProcessMetadata ...
func (d *DefaultExternalState) ProcessMetadata(repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) {
	d.state.ProcessMetadata(repl, oq)
}

// ShouldStopFetching ...
func (d *DefaultExternalState) ShouldStopFetching(source models.HostAndPort,
	repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) bool {
	return d.evaluator.ShouldStopFetching(source, repl, oq)
}

// MakeInitialSyncOplogBuffer builds new empty buffer with configured capacity.
func (d *DefaultExternalState) MakeInitialSyncOplogBuffer() oplog.Buffer {
	return oplog.NewBlockingQueue(d.bufferCfg.MaxCount, d.bufferCfg.MaxBytes, d.bufferCfg.Policy)
}

// NextApplierBatch ...
func (d *DefaultExternalState) NextApplierBatch(buf oplog.Buffer) (models.Batch, error) {
	return d.batcher.NextBatch(buf)
}

// CurrentConfig ...
func (d *DefaultExternalState) CurrentConfig(ctx context.Context) (models.ReplSetConfig, error) {
	return d.state.CurrentConfig(ctx)
}

// MultiApply applies ops fetched from source.
func (d *DefaultExternalState) MultiApply(ctx context.Context,
	ops models.Batch, observer oplog.Observer, source models.HostAndPort) (models.OpTime, error) {
	if len(ops) > 0 {
		tracelog.DebugLogger.Printf("Applying %d ops [%s - %s] fetched from %s",
			len(ops), ops[0].TS, ops[len(ops)-1].TS, source)
	}
	return d.applier.Apply(ctx, ops, observer)
}
