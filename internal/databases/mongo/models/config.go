package models

import "fmt"

// ReplSetMember ...
type ReplSetMember struct {
	ID          int     `bson:"_id" json:"_id"`
	Host        string  `bson:"host" json:"host"`
	ArbiterOnly bool    `bson:"arbiterOnly" json:"arbiterOnly"`
	Hidden      bool    `bson:"hidden" json:"hidden"`
	Priority    float64 `bson:"priority" json:"priority"`
	Votes       int     `bson:"votes" json:"votes"`
}

// ReplSetSettings ...
type ReplSetSettings struct {
	ChainingAllowed         bool  `bson:"chainingAllowed" json:"chainingAllowed"`
	HeartbeatIntervalMillis int64 `bson:"heartbeatIntervalMillis" json:"heartbeatIntervalMillis"`
	ElectionTimeoutMillis   int64 `bson:"electionTimeoutMillis" json:"electionTimeoutMillis"`
}

// ReplSetConfig is the active replica set configuration as returned by replSetGetConfig.
type ReplSetConfig struct {
	ID       string          `bson:"_id" json:"_id"`
	Version  int64           `bson:"version" json:"version"`
	Term     int64           `bson:"term" json:"term"`
	Members  []ReplSetMember `bson:"members" json:"members"`
	Settings ReplSetSettings `bson:"settings" json:"settings"`
}

// Validate checks config is complete enough to be used.
func (c ReplSetConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("replica set config has no set name")
	}
	if len(c.Members) == 0 {
		return fmt.Errorf("replica set config '%s' has no members", c.ID)
	}
	seen := make(map[int]struct{}, len(c.Members))
	for _, m := range c.Members {
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("replica set config '%s' has duplicate member id %d", c.ID, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// FindMember returns member listening on given host.
func (c ReplSetConfig) FindMember(host HostAndPort) (ReplSetMember, bool) {
	for _, m := range c.Members {
		if m.Host == host.String() {
			return m, true
		}
	}
	return ReplSetMember{}, false
}
