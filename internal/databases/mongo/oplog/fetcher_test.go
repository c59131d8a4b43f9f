package oplog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wal-g/initsync/internal/databases/mongo/client"
	mongoMocks "github.com/wal-g/initsync/internal/databases/mongo/client/mocks"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
)

func zeroBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 0)
}

func bsonStream(entries ...models.OplogEntry) *bytes.Buffer {
	buf := &bytes.Buffer{}
	for _, e := range entries {
		buf.Write(e.Data)
	}
	return buf
}

func TestFetcher_Fetch(t *testing.T) {
	v := models.SupportedOplogVersion
	entries := buildEntries(v, 1, 2, 3)

	tests := []struct {
		name    string
		from    models.Timestamp
		wantTS  []uint32
		wantErr error
	}{
		{
			name:    "from_zero_ts",
			from:    models.Timestamp{},
			wantTS:  []uint32{1, 2, 3},
			wantErr: ErrCursorExhausted,
		},
		{
			name:    "from_first_ts",
			from:    models.Timestamp{TS: 1, Inc: 1},
			wantTS:  []uint32{1, 2, 3},
			wantErr: ErrCursorExhausted,
		},
		{
			name:    "from_ts_is_lost",
			from:    models.Timestamp{TS: 0, Inc: 5},
			wantTS:  []uint32{},
			wantErr: fmt.Errorf("expected first ts is 0.5, but 1.1 is given"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBlockingQueue(0, 0, BlockWhenFull)
			fetcher := NewFetcher(client.NewBsonCursor(bsonStream(entries...)), buf, zeroBackOff)
			wg := &sync.WaitGroup{}

			errc, err := fetcher.Fetch(context.TODO(), tt.from, wg)
			require.NoError(t, err)
			fetchErr := <-errc
			wg.Wait()

			if errors.Is(tt.wantErr, ErrCursorExhausted) {
				assert.True(t, errors.Is(fetchErr, ErrCursorExhausted))
			} else {
				assert.EqualError(t, fetchErr, tt.wantErr.Error())
			}

			batch, err := NextApplierBatch(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTS, timestamps(batch))
			if len(tt.wantTS) > 0 {
				assert.Equal(t, entries[len(entries)-1].OpTime(), fetcher.LastFetched())
			}
		})
	}
}

func TestFetcher_FullBufferFailsFetch(t *testing.T) {
	entries := buildEntries(models.SupportedOplogVersion, 1, 2, 3)
	buf := NewBlockingQueue(2, 0, FailWhenFull)
	fetcher := NewFetcher(client.NewBsonCursor(bsonStream(entries...)), buf, zeroBackOff)
	wg := &sync.WaitGroup{}

	errc, err := fetcher.Fetch(context.TODO(), models.Timestamp{}, wg)
	require.NoError(t, err)
	fetchErr := <-errc
	wg.Wait()

	assert.True(t, errors.Is(fetchErr, models.ErrBufferFull))
	assert.Equal(t, 2, buf.Count())
	assert.Equal(t, entries[1].OpTime(), fetcher.LastFetched())
}

func TestFetcher_CanceledWhileBlocked(t *testing.T) {
	entries := buildEntries(models.SupportedOplogVersion, 1, 2, 3)
	buf := NewBlockingQueue(1, 0, BlockWhenFull)
	fetcher := NewFetcher(client.NewBsonCursor(bsonStream(entries...)), buf, zeroBackOff)
	wg := &sync.WaitGroup{}
	ctx, cancel := context.WithCancel(context.Background())

	errc, err := fetcher.Fetch(ctx, models.Timestamp{}, wg)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	cancel()

	_, ok := <-errc
	assert.False(t, ok, "cancellation must not be reported as fetch error")
	wg.Wait()
}

func TestFetcher_CursorError(t *testing.T) {
	entries := buildEntries(models.SupportedOplogVersion, 1)
	cur := &mongoMocks.OplogCursor{}
	cur.On("Next", mock.Anything).Return(true).Once()
	cur.On("Data").Return(entries[0].Data).Once()
	cur.On("Next", mock.Anything).Return(false).Once()
	cur.On("Err").Return(fmt.Errorf("connection reset"))
	cur.On("Close", mock.Anything).Return(nil).Once()

	buf := NewBlockingQueue(0, 0, BlockWhenFull)
	wg := &sync.WaitGroup{}
	errc, err := NewFetcher(cur, buf, zeroBackOff).Fetch(context.TODO(), models.Timestamp{}, wg)
	require.NoError(t, err)
	fetchErr := <-errc
	wg.Wait()

	assert.EqualError(t, fetchErr, "oplog cursor error: connection reset")
	assert.Equal(t, 1, buf.Count())
	cur.AssertExpectations(t)
}

func TestFetcher_NoCursor(t *testing.T) {
	_, err := NewFetcher(nil, NewBlockingQueue(0, 0, BlockWhenFull), zeroBackOff).
		Fetch(context.TODO(), models.Timestamp{}, &sync.WaitGroup{})
	assert.Error(t, err)
}
