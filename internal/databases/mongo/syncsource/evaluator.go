package syncsource

import (
	"sync"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/tracelog"
)

// Progress is sync source replication progress normalized from fetch response metadata.
type Progress struct {
	Source            models.HostAndPort
	LastOpTime        models.OpTime
	HasSyncSource     bool
	UsedQueryMetadata bool
}

// Recorder receives every evaluated sync source check.
type Recorder interface {
	RecordSyncSourceCheck(p Progress)
}

// RecorderFunc adapts plain function to Recorder.
type RecorderFunc func(p Progress)

// RecordSyncSourceCheck calls f(p).
func (f RecorderFunc) RecordSyncSourceCheck(p Progress) {
	f(p)
}

// StopPolicy decides whether fetching from sync source should stop.
type StopPolicy func(p Progress) bool

// NeverStop keeps fetching regardless of sync source progress.
func NeverStop(Progress) bool {
	return false
}

// FixedPolicy always returns result.
func FixedPolicy(result bool) StopPolicy {
	return func(Progress) bool {
		return result
	}
}

// BehindLocalPolicy stops fetching when sync source is behind local node while syncing from another member.
func BehindLocalPolicy(local func() models.OpTime) StopPolicy {
	return func(p Progress) bool {
		return p.HasSyncSource && models.LessOpTime(p.LastOpTime, local())
	}
}

// Evaluator normalizes sync source metadata and applies stop policy.
type Evaluator struct {
	policy   StopPolicy
	recorder Recorder

	mu      sync.Mutex
	last    Progress
	checked bool
}

// NewEvaluator builds Evaluator, nil policy never stops, nil recorder is ignored.
func NewEvaluator(policy StopPolicy, recorder Recorder) *Evaluator {
	if policy == nil {
		policy = NeverStop
	}
	return &Evaluator{policy: policy, recorder: recorder}
}

// Evaluate normalizes metadata. Oplog query metadata takes precedence over replica set metadata.
func Evaluate(source models.HostAndPort, repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) Progress {
	if oq != nil {
		return Progress{
			Source:            source,
			LastOpTime:        oq.LastOpApplied,
			HasSyncSource:     oq.SyncSourceIndex != models.NoSyncSource,
			UsedQueryMetadata: true,
		}
	}
	return Progress{
		Source:        source,
		LastOpTime:    repl.LastOpVisible,
		HasSyncSource: repl.SyncSourceIndex != models.NoSyncSource,
	}
}

// Evaluate normalizes and records metadata without consulting stop policy.
func (e *Evaluator) Evaluate(source models.HostAndPort, repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) Progress {
	p := Evaluate(source, repl, oq)

	e.mu.Lock()
	e.last = p
	e.checked = true
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.RecordSyncSourceCheck(p)
	}
	return p
}

// ShouldStopFetching records sync source progress and reports whether fetching should stop.
func (e *Evaluator) ShouldStopFetching(source models.HostAndPort,
	repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) bool {
	p := e.Evaluate(source, repl, oq)
	stop := e.policy(p)
	tracelog.DebugLogger.Printf("Sync source %s: last op %s, has sync source %v, stop %v",
		p.Source, p.LastOpTime, p.HasSyncSource, stop)
	return stop
}

// Last returns most recently evaluated progress, false if nothing was evaluated yet.
func (e *Evaluator) Last() (Progress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.checked
}
