package replstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
)

func opTime(ts uint32, term int64) models.OpTime {
	return models.OpTime{TS: models.Timestamp{TS: ts, Inc: 1}, Term: term}
}

func TestState_Advance(t *testing.T) {
	tests := []struct {
		name        string
		steps       []models.OpTimeWithTerm
		wantChanged []bool
		want        models.OpTimeWithTerm
	}{
		{
			name:        "moves_forward",
			steps:       []models.OpTimeWithTerm{{Term: 1, OpTime: opTime(10, 1)}, {Term: 2, OpTime: opTime(5, 2)}},
			wantChanged: []bool{true, true},
			want:        models.OpTimeWithTerm{Term: 2, OpTime: opTime(5, 2)},
		},
		{
			name:        "stale_term_is_ignored",
			steps:       []models.OpTimeWithTerm{{Term: 3, OpTime: opTime(10, 3)}, {Term: 2, OpTime: opTime(20, 2)}},
			wantChanged: []bool{true, false},
			want:        models.OpTimeWithTerm{Term: 3, OpTime: opTime(10, 3)},
		},
		{
			name:        "commit_point_never_goes_back",
			steps:       []models.OpTimeWithTerm{{Term: 1, OpTime: opTime(10, 1)}, {Term: 1, OpTime: opTime(9, 1)}},
			wantChanged: []bool{true, false},
			want:        models.OpTimeWithTerm{Term: 1, OpTime: opTime(10, 1)},
		},
		{
			name:        "null_commit_point_keeps_previous",
			steps:       []models.OpTimeWithTerm{{Term: 1, OpTime: opTime(10, 1)}, {Term: 2}},
			wantChanged: []bool{true, true},
			want:        models.OpTimeWithTerm{Term: 2, OpTime: opTime(10, 1)},
		},
		{
			name:        "commit_point_from_future_term",
			steps:       []models.OpTimeWithTerm{{Term: 1, OpTime: opTime(10, 2)}},
			wantChanged: []bool{true},
			want:        models.OpTimeWithTerm{Term: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(nil)
			for i, step := range tt.steps {
				assert.Equal(t, tt.wantChanged[i], s.Advance(step.Term, step.OpTime), "step %d", i)
			}
			assert.Equal(t, tt.want, s.CurrentTermAndLastCommitted())
		})
	}
}

func TestState_SnapshotIsConsistent(t *testing.T) {
	s := NewState(nil)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for term := int64(1); term <= 1000; term++ {
			s.Advance(term, opTime(uint32(term), term))
		}
	}()

	for i := 0; i < 1000; i++ {
		snap := s.CurrentTermAndLastCommitted()
		if !snap.OpTime.IsNull() {
			require.Equal(t, snap.Term, snap.OpTime.Term)
		}
	}
	wg.Wait()
	assert.Equal(t, models.OpTimeWithTerm{Term: 1000, OpTime: opTime(1000, 1000)}, s.CurrentTermAndLastCommitted())
}

func TestState_ProcessMetadata(t *testing.T) {
	s := NewState(nil)
	repl := models.ReplSetMetadata{Term: 4, LastOpCommitted: opTime(10, 4), SyncSourceIndex: models.NoSyncSource}

	s.ProcessMetadata(repl, nil)
	assert.Equal(t, models.OpTimeWithTerm{Term: 4, OpTime: opTime(10, 4)}, s.CurrentTermAndLastCommitted())
	lastRepl, lastOq := s.LastProcessedMetadata()
	require.NotNil(t, lastRepl)
	assert.Equal(t, repl, *lastRepl)
	assert.Nil(t, lastOq)

	oq := &models.OplogQueryMetadata{LastOpCommitted: opTime(12, 4), SyncSourceIndex: 1}
	s.ProcessMetadata(repl, oq)
	assert.Equal(t, models.OpTimeWithTerm{Term: 4, OpTime: opTime(12, 4)}, s.CurrentTermAndLastCommitted())
	_, lastOq = s.LastProcessedMetadata()
	require.NotNil(t, lastOq)
	assert.Equal(t, *oq, *lastOq)

	oq.LastOpCommitted = opTime(20, 4)
	_, lastOq = s.LastProcessedMetadata()
	assert.Equal(t, opTime(12, 4), lastOq.LastOpCommitted)
}

func TestState_CurrentConfig(t *testing.T) {
	cfg := models.ReplSetConfig{ID: "rs01", Version: 3, Members: []models.ReplSetMember{{ID: 0, Host: "rs01.local:27017"}}}
	storeErr := fmt.Errorf("NotYetInitialized: no replset config has been received")

	t.Run("config_is_returned", func(t *testing.T) {
		got, err := NewState(&StaticConfigSource{Config: cfg}).CurrentConfig(context.TODO())
		assert.NoError(t, err)
		assert.Equal(t, cfg, got)
	})

	t.Run("store_error_is_returned_as_is", func(t *testing.T) {
		_, err := NewState(&StaticConfigSource{Err: storeErr}).CurrentConfig(context.TODO())
		assert.Equal(t, storeErr, err)
	})

	t.Run("no_store", func(t *testing.T) {
		_, err := NewState(nil).CurrentConfig(context.TODO())
		assert.True(t, errors.Is(err, models.ErrConfigUnavailable))
	})
}

type getterFunc func(ctx context.Context) (models.ReplSetConfig, error)

func (f getterFunc) ReplSetGetConfig(ctx context.Context) (models.ReplSetConfig, error) {
	return f(ctx)
}

func TestDriverConfigSource(t *testing.T) {
	valid := models.ReplSetConfig{ID: "rs01", Members: []models.ReplSetMember{{ID: 0, Host: "a:27017"}}}
	driverErr := fmt.Errorf("connection refused")

	tests := []struct {
		name    string
		getter  ConfigGetter
		want    models.ReplSetConfig
		wantErr error
	}{
		{
			name:   "valid_config",
			getter: getterFunc(func(context.Context) (models.ReplSetConfig, error) { return valid, nil }),
			want:   valid,
		},
		{
			name:    "driver_error",
			getter:  getterFunc(func(context.Context) (models.ReplSetConfig, error) { return models.ReplSetConfig{}, driverErr }),
			wantErr: driverErr,
		},
		{
			name:    "invalid_config",
			getter:  getterFunc(func(context.Context) (models.ReplSetConfig, error) { return models.ReplSetConfig{ID: "rs01"}, nil }),
			wantErr: models.ErrConfigUnavailable,
		},
		{
			name:    "no_getter",
			getter:  nil,
			wantErr: models.ErrConfigUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDriverConfigSource(tt.getter).CurrentConfig(context.TODO())
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "unexpected error: %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
