package replstate

import (
	"context"
	"sync"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/tracelog"
)

// State is in-process replication state: current term, commit point and config store access.
type State struct {
	config ConfigSource

	mu            sync.RWMutex
	term          int64
	lastCommitted models.OpTime
	lastRepl      *models.ReplSetMetadata
	lastOq        *models.OplogQueryMetadata
}

// NewState builds State, config may be nil if no config store is available.
func NewState(config ConfigSource) *State {
	return &State{config: config}
}

// CurrentTermAndLastCommitted returns term and commit point read under one lock.
func (s *State) CurrentTermAndLastCommitted() models.OpTimeWithTerm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.OpTimeWithTerm{Term: s.term, OpTime: s.lastCommitted}
}

// Advance moves term and commit point forward, stale values are ignored.
// Returns true if state was changed.
func (s *State) Advance(term int64, committed models.OpTime) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance(term, committed)
}

func (s *State) advance(term int64, committed models.OpTime) bool {
	changed := false
	if term > s.term {
		s.term = term
		changed = true
	}
	if !committed.IsNull() && committed.Term <= s.term && models.LessOpTime(s.lastCommitted, committed) {
		s.lastCommitted = committed
		changed = true
	}
	return changed
}

// ProcessMetadata updates state from sync source metadata.
// Commit point of oplog query metadata takes precedence when present.
func (s *State) ProcessMetadata(repl models.ReplSetMetadata, oq *models.OplogQueryMetadata) {
	committed := repl.LastOpCommitted
	if oq != nil {
		committed = oq.LastOpCommitted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	replCopy := repl
	s.lastRepl = &replCopy
	s.lastOq = nil
	if oq != nil {
		oqCopy := *oq
		s.lastOq = &oqCopy
	}
	if s.advance(repl.Term, committed) {
		tracelog.DebugLogger.Printf("Replication state advanced: term %d, last committed %s", s.term, s.lastCommitted)
	}
}

// LastProcessedMetadata returns metadata passed to the latest ProcessMetadata call.
func (s *State) LastProcessedMetadata() (*models.ReplSetMetadata, *models.OplogQueryMetadata) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRepl, s.lastOq
}

// CurrentConfig reads replica set config from config store, store errors are returned as is.
func (s *State) CurrentConfig(ctx context.Context) (models.ReplSetConfig, error) {
	if s.config == nil {
		return models.ReplSetConfig{}, models.NewError(models.ConfigUnavailable, "config store is not set")
	}
	return s.config.CurrentConfig(ctx)
}
