package oplog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/wal-g/initsync/internal/databases/mongo/client"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/tracelog"
)

// ErrCursorExhausted is reported when oplog cursor has no more documents.
var ErrCursorExhausted = errors.New("oplog cursor exhausted")

// Fetcher moves oplog records from cursor to staging buffer.
type Fetcher struct {
	cur        client.OplogCursor
	buf        Buffer
	newBackOff func() backoff.BackOff

	mu          sync.Mutex
	lastFetched models.OpTime
}

// NewFetcher builds Fetcher, newBackOff is called for every push retried on full buffer.
func NewFetcher(cur client.OplogCursor, buf Buffer, newBackOff func() backoff.BackOff) *Fetcher {
	return &Fetcher{cur: cur, buf: buf, newBackOff: newBackOff}
}

// LastFetched returns optime of the last record staged.
func (f *Fetcher) LastFetched() models.OpTime {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFetched
}

// Fetch fills buffer in background starting from given timestamp.
// Zero timestamp means start from the first record of cursor.
func (f *Fetcher) Fetch(ctx context.Context, from models.Timestamp, wg *sync.WaitGroup) (chan error, error) {
	if f.cur == nil {
		return nil, fmt.Errorf("oplog cursor is not set")
	}

	errc := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(errc)
		defer func() { _ = f.cur.Close(ctx) }()

		checkFirstTS := from != models.Timestamp{}
		for f.cur.Next(ctx) {
			op, err := models.OplogEntryFromRaw(f.cur.Data())
			if err != nil {
				errc <- err
				return
			}

			if checkFirstTS {
				if op.TS != from {
					errc <- fmt.Errorf("expected first ts is %v, but %v is given", from, op.TS)
					return
				}
				checkFirstTS = false
			}

			tracelog.DebugLogger.Printf("Fetcher received op %s (%s on %s)", op.TS, op.OP, op.NS)
			if err := PushWithRetry(ctx, f.buf, op, f.newBackOff()); err != nil {
				if ctx.Err() != nil {
					return
				}
				errc <- fmt.Errorf("can not stage op %s: %w", op.TS, err)
				return
			}

			f.mu.Lock()
			f.lastFetched = op.OpTime()
			f.mu.Unlock()
		}

		if err := f.cur.Err(); err != nil {
			if errors.Is(err, ctx.Err()) {
				return
			}
			errc <- fmt.Errorf("oplog cursor error: %w", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		errc <- ErrCursorExhausted
	}()

	return errc, nil
}
