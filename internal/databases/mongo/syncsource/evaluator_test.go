package syncsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
)

func opTime(ts uint32, term int64) models.OpTime {
	return models.OpTime{TS: models.Timestamp{TS: ts, Inc: 1}, Term: term}
}

func TestEvaluate(t *testing.T) {
	source := models.HostAndPort{Host: "rs01.local", Port: 27017}
	tests := []struct {
		name string
		repl models.ReplSetMetadata
		oq   *models.OplogQueryMetadata
		want Progress
	}{
		{
			name: "query_metadata_without_sync_source",
			repl: models.ReplSetMetadata{LastOpVisible: opTime(5, 1), SyncSourceIndex: 2},
			oq:   &models.OplogQueryMetadata{LastOpApplied: opTime(10, 1), SyncSourceIndex: models.NoSyncSource},
			want: Progress{Source: source, LastOpTime: opTime(10, 1), HasSyncSource: false, UsedQueryMetadata: true},
		},
		{
			name: "query_metadata_with_sync_source",
			repl: models.ReplSetMetadata{LastOpVisible: opTime(5, 1), SyncSourceIndex: models.NoSyncSource},
			oq:   &models.OplogQueryMetadata{LastOpApplied: opTime(10, 1), SyncSourceIndex: 0},
			want: Progress{Source: source, LastOpTime: opTime(10, 1), HasSyncSource: true, UsedQueryMetadata: true},
		},
		{
			name: "repl_metadata_without_sync_source",
			repl: models.ReplSetMetadata{LastOpVisible: opTime(5, 2), SyncSourceIndex: models.NoSyncSource},
			want: Progress{Source: source, LastOpTime: opTime(5, 2), HasSyncSource: false},
		},
		{
			name: "repl_metadata_with_sync_source",
			repl: models.ReplSetMetadata{LastOpVisible: opTime(5, 2), SyncSourceIndex: 1},
			want: Progress{Source: source, LastOpTime: opTime(5, 2), HasSyncSource: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(source, tt.repl, tt.oq))
		})
	}
}

func TestEvaluator_ShouldStopFetching(t *testing.T) {
	source := models.HostAndPort{Host: "rs02.local", Port: 27018}
	oq := &models.OplogQueryMetadata{LastOpApplied: opTime(7, 3), SyncSourceIndex: models.NoSyncSource}

	var recorded []Progress
	e := NewEvaluator(nil, RecorderFunc(func(p Progress) { recorded = append(recorded, p) }))

	_, ok := e.Last()
	assert.False(t, ok)

	assert.False(t, e.ShouldStopFetching(source, models.ReplSetMetadata{}, oq))
	last, ok := e.Last()
	assert.True(t, ok)
	assert.Equal(t, source, last.Source)
	assert.Equal(t, opTime(7, 3), last.LastOpTime)
	assert.False(t, last.HasSyncSource)
	assert.Equal(t, []Progress{last}, recorded)
}

func TestEvaluator_Policies(t *testing.T) {
	source := models.HostAndPort{Host: "rs03.local", Port: 27017}
	syncing := models.ReplSetMetadata{LastOpVisible: opTime(5, 1), SyncSourceIndex: 0}
	primary := models.ReplSetMetadata{LastOpVisible: opTime(5, 1), SyncSourceIndex: models.NoSyncSource}
	local := func() models.OpTime { return opTime(6, 1) }

	tests := []struct {
		name   string
		policy StopPolicy
		repl   models.ReplSetMetadata
		want   bool
	}{
		{name: "fixed_true", policy: FixedPolicy(true), repl: primary, want: true},
		{name: "fixed_false", policy: FixedPolicy(false), repl: syncing, want: false},
		{name: "behind_local_and_syncing", policy: BehindLocalPolicy(local), repl: syncing, want: true},
		{name: "behind_local_without_sync_source", policy: BehindLocalPolicy(local), repl: primary, want: false},
		{
			name:   "ahead_of_local",
			policy: BehindLocalPolicy(func() models.OpTime { return opTime(4, 1) }),
			repl:   syncing,
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(tt.policy, nil)
			assert.Equal(t, tt.want, e.ShouldStopFetching(source, tt.repl, nil))
		})
	}
}
