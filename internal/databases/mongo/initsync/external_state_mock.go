package initsync

import (
	"context"
	"sync"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/initsync/internal/databases/mongo/oplog"
	"github.com/wal-g/initsync/internal/databases/mongo/syncsource"
	"github.com/wal-g/initsync/internal/executor"
)

// MultiApplyFunc replaces batch application in ExternalStateMock.
type MultiApplyFunc func(ctx context.Context, ops models.Batch, observer oplog.Observer) (models.OpTime, error)

// LastOpTimeApplyFunc applies nothing and returns optime of the last op.
func LastOpTimeApplyFunc(_ context.Context, ops models.Batch, _ oplog.Observer) (models.OpTime, error) {
	if len(ops) == 0 {
		return models.OpTime{}, models.ErrEmptyBatch
	}
	return ops[len(ops)-1].OpTime(), nil
}

// ProcessedMetadata is a pair of metadata passed to ProcessMetadata.
type ProcessedMetadata struct {
	Repl models.ReplSetMetadata
	Oq   *models.OplogQueryMetadata
}

// Recorder captures calls made to ExternalStateMock.
type Recorder struct {
	mu                sync.Mutex
	syncSourceChecks  []syncsource.Progress
	processedMetadata []ProcessedMetadata
	appliedBatches    []models.Batch
}

// RecordSyncSourceCheck ...
func (r *Recorder) RecordSyncSourceCheck(p syncsource.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncSourceChecks = append(r.syncSourceChecks, p)
}

// SyncSourceChecks returns all normalized sync source checks in call order.
func (r *Recorder) SyncSourceChecks() []syncsource.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]syncsource.Progress(nil), r.syncSourceChecks...)
}

// LastSyncSourceCheck returns the latest sync source check.
func (r *Recorder) LastSyncSourceCheck() (syncsource.Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.syncSourceChecks) == 0 {
		return syncsource.Progress{}, false
	}
	return r.syncSourceChecks[len(r.syncSourceChecks)-1], true
}

// ProcessedMetadata returns metadata passed to ProcessMetadata in call order.
func (r *Recorder) ProcessedMetadata() []ProcessedMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProcessedMetadata(nil), r.processedMetadata...)
}

// AppliedBatches returns batches passed to MultiApply in call order.
func (r *Recorder) AppliedBatches() []models.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Batch(nil), r.appliedBatches...)
}

func (r *Recorder) recordMetadata(repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processedMetadata = append(r.processedMetadata, ProcessedMetadata{Repl: repl, Oq: oq})
}

func (r *Recorder) recordBatch(ops models.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appliedBatches = append(r.appliedBatches, ops)
}

// ExternalStateMock is ExternalState with configurable results, used in tests.
type ExternalStateMock struct {
	Executor            executor.Executor
	CurrentTerm         int64
	LastCommittedOpTime models.OpTime

	ShouldStopFetchingResult bool
	ConfigResult             models.ReplSetConfig
	ConfigErr                error
	MultiApplyFn             MultiApplyFunc

	// Recorder is created on first use when left nil
	Recorder     *Recorder
	recorderOnce sync.Once
}

// NewExternalStateMock builds mock returning last op optime on apply and an empty config.
func NewExternalStateMock() *ExternalStateMock {
	return &ExternalStateMock{
		Executor:     executor.NewSemaphoreExecutor(1),
		MultiApplyFn: LastOpTimeApplyFunc,
		Recorder:     &Recorder{},
	}
}

// TaskExecutor ...
func (m *ExternalStateMock) TaskExecutor() executor.Executor {
	return m.Executor
}

// CurrentTermAndLastCommittedOpTime ...
func (m *ExternalStateMock) CurrentTermAndLastCommittedOpTime() models.OpTimeWithTerm {
	return models.OpTimeWithTerm{Term: m.CurrentTerm, OpTime: m.LastCommittedOpTime}
}

// ProcessMetadata records metadata.
func (m *ExternalStateMock) ProcessMetadata(repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) {
	m.recorder().recordMetadata(repl, oq)
}

// ShouldStopFetching records normalized sync source progress and returns ShouldStopFetchingResult.
func (m *ExternalStateMock) ShouldStopFetching(source models.HostAndPort,
	repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) bool {
	evaluator := syncsource.NewEvaluator(syncsource.FixedPolicy(m.ShouldStopFetchingResult), m.recorder())
	return evaluator.ShouldStopFetching(source, repl, oq)
}

// MakeInitialSyncOplogBuffer returns unbounded buffer.
func (m *ExternalStateMock) MakeInitialSyncOplogBuffer() oplog.Buffer {
	return oplog.NewBlockingQueue(0, 0, oplog.BlockWhenFull)
}

// NextApplierBatch drains the whole buffer.
func (m *ExternalStateMock) NextApplierBatch(buf oplog.Buffer) (models.Batch, error) {
	return oplog.NextApplierBatch(buf)
}

// CurrentConfig returns ConfigResult or ConfigErr.
func (m *ExternalStateMock) CurrentConfig(_ context.Context) (models.ReplSetConfig, error) {
	if m.ConfigErr != nil {
		return models.ReplSetConfig{}, m.ConfigErr
	}
	return m.ConfigResult, nil
}

// MultiApply records non-empty batch and calls MultiApplyFn.
func (m *ExternalStateMock) MultiApply(ctx context.Context,
	ops models.Batch, observer oplog.Observer, _ models.HostAndPort) (models.OpTime, error) {
	if len(ops) == 0 {
		return models.OpTime{}, models.ErrEmptyBatch
	}
	m.recorder().recordBatch(ops)
	fn := m.MultiApplyFn
	if fn == nil {
		fn = LastOpTimeApplyFunc
	}
	return fn(ctx, ops, observer)
}

func (m *ExternalStateMock) recorder() *Recorder {
	m.recorderOnce.Do(func() {
		if m.Recorder == nil {
			m.Recorder = &Recorder{}
		}
	})
	return m.Recorder
}
