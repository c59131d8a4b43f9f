package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/wal-g/initsync/internal/databases/mongo/client"
	"github.com/wal-g/initsync/internal/databases/mongo/initsync"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/initsync/internal/databases/mongo/oplog"
	"github.com/wal-g/initsync/utility"
	"github.com/wal-g/tracelog"
)

const (
	pushBackOffInitialInterval = 100 * time.Millisecond
)

// ErrStopFetching is returned when sync source check decided to stop fetching.
var ErrStopFetching = errors.New("sync source check requested to stop fetching")

// MetadataFetcher reads replication metadata of sync source.
type MetadataFetcher interface {
	ReplicationMetadata(ctx context.Context) (models.ReplSetMetadata, *models.OplogQueryMetadata, error)
}

// OplogSyncSettings configures oplog sync loops.
type OplogSyncSettings struct {
	Since            models.Timestamp
	Source           models.HostAndPort
	BatchInterval    time.Duration
	MetadataInterval time.Duration
	PushRetries      uint64
}

func (s OplogSyncSettings) validate(withMetadata bool) error {
	if s.BatchInterval <= 0 {
		return fmt.Errorf("batch interval must be positive, got %v", s.BatchInterval)
	}
	if withMetadata && s.MetadataInterval <= 0 {
		return fmt.Errorf("metadata interval must be positive, got %v", s.MetadataInterval)
	}
	return nil
}

type oplogSyncer struct {
	es       initsync.ExternalState
	meta     MetadataFetcher
	observer oplog.Observer
	settings OplogSyncSettings

	stopped chan struct{}

	mu          sync.Mutex
	lastApplied models.OpTime
}

// HandleOplogSync tails sync source oplog into initial sync buffer and applies staged batches
// until the cursor is exhausted, an error occurs or sync source check requests to stop.
// Returns optime of the last applied entry.
func HandleOplogSync(ctx context.Context,
	es initsync.ExternalState,
	cur client.OplogCursor,
	meta MetadataFetcher,
	observer oplog.Observer,
	settings OplogSyncSettings) (models.OpTime, error) {
	if err := settings.validate(meta != nil); err != nil {
		return models.OpTime{}, err
	}

	parentCtx := ctx
	ctx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	buf := es.MakeInitialSyncOplogBuffer()
	stopStages := func() {
		cancel()
		buf.Shutdown()
		wg.Wait()
	}

	s := &oplogSyncer{
		es:       es,
		meta:     meta,
		observer: observer,
		settings: settings,
		stopped:  make(chan struct{}),
	}

	fetcher := oplog.NewFetcher(cur, buf, func() backoff.BackOff {
		return oplog.NewPushBackOff(settings.PushRetries, pushBackOffInitialInterval)
	})
	fetchErrc, err := fetcher.Fetch(ctx, settings.Since, wg)
	if err != nil {
		stopStages()
		return models.OpTime{}, err
	}

	errs := []<-chan error{s.applyLoop(ctx, buf, fetchErrc, wg)}
	if meta != nil {
		errs = append(errs, s.metadataLoop(ctx, wg))
	}

	err = utility.WaitFirstError(errs...)
	if err == nil {
		err = parentCtx.Err()
	}
	stopStages()
	tracelog.InfoLogger.Printf("Oplog sync finished, last fetched %s, last applied %s", fetcher.LastFetched(), s.LastApplied())
	return s.LastApplied(), err
}

// LastApplied returns optime of the last applied op.
func (s *oplogSyncer) LastApplied() models.OpTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastApplied
}

func (s *oplogSyncer) applyLoop(ctx context.Context, buf oplog.Buffer, fetchErrc <-chan error, wg *sync.WaitGroup) <-chan error {
	errc := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(errc)
		defer close(s.stopped)

		ticker := time.NewTicker(s.settings.BatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case fetchErr, ok := <-fetchErrc:
				if ctx.Err() != nil {
					return
				}
				if ok && !errors.Is(fetchErr, oplog.ErrCursorExhausted) {
					errc <- fetchErr
					return
				}
				tracelog.InfoLogger.Println("Oplog fetching is done, applying staged ops")
				if err := s.applyStaged(ctx, buf); err != nil {
					errc <- err
				}
				return
			case <-ticker.C:
				if err := s.applyStaged(ctx, buf); err != nil {
					errc <- err
					return
				}
			}
		}
	}()
	return errc
}

// applyStaged applies batches until buffer is empty.
func (s *oplogSyncer) applyStaged(ctx context.Context, buf oplog.Buffer) error {
	for {
		batch, err := s.es.NextApplierBatch(buf)
		if err != nil {
			return fmt.Errorf("can not form applier batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		h, err := s.es.TaskExecutor().Submit(ctx, func(ctx context.Context) error {
			opTime, err := s.es.MultiApply(ctx, batch, s.observer, s.settings.Source)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.lastApplied = opTime
			s.mu.Unlock()
			return nil
		})
		if err != nil {
			return err
		}
		if err := h.Wait(); err != nil {
			return err
		}
	}
}

func (s *oplogSyncer) metadataLoop(ctx context.Context, wg *sync.WaitGroup) <-chan error {
	errc := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(errc)

		ticker := time.NewTicker(s.settings.MetadataInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopped:
				return
			case <-ticker.C:
			}

			repl, oq, err := s.meta.ReplicationMetadata(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				tracelog.WarningLogger.Printf("Failed to fetch replication metadata from %s: %v", s.settings.Source, err)
				continue
			}
			s.es.ProcessMetadata(repl, oq)
			if s.es.ShouldStopFetching(s.settings.Source, repl, oq) {
				errc <- ErrStopFetching
				return
			}
		}
	}()
	return errc
}
