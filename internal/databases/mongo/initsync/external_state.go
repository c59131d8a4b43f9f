package initsync

import (
	"context"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/initsync/internal/databases/mongo/oplog"
	"github.com/wal-g/initsync/internal/executor"
)

var (
	_ = []ExternalState{&DefaultExternalState{}, &ExternalStateMock{}}
)

// ExternalState is everything initial sync needs from the rest of the node.
type ExternalState interface {
	TaskExecutor() executor.Executor
	CurrentTermAndLastCommittedOpTime() models.OpTimeWithTerm
	ProcessMetadata(repl models.ReplSetMetadata, oq *models.OplogQueryMetadata)
	ShouldStopFetching(source models.HostAndPort, repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) bool
	MakeInitialSyncOplogBuffer() oplog.Buffer
	NextApplierBatch(buf oplog.Buffer) (models.Batch, error)
	CurrentConfig(ctx context.Context) (models.ReplSetConfig, error)
	MultiApply(ctx context.Context, ops models.Batch, observer oplog.Observer, source models.HostAndPort) (models.OpTime, error)
}
