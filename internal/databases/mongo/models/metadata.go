package models

import (
	"fmt"
	"net"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// NoSyncSource is the member index reported by a node that is not syncing from anybody.
	NoSyncSource = -1

	replSetMetadataField    = "$replData"
	oplogQueryMetadataField = "$oplogQueryData"
	defaultMongodPort       = 27017
)

// HostAndPort identifies a replica set member.
type HostAndPort struct {
	Host string
	Port int
}

// String returns text representation of HostAndPort struct
func (hp HostAndPort) String() string {
	return net.JoinHostPort(hp.Host, strconv.Itoa(hp.Port))
}

// IsEmpty reports whether host is not set
func (hp HostAndPort) IsEmpty() bool {
	return hp.Host == ""
}

// ParseHostAndPort builds HostAndPort from "host[:port]" string
func ParseHostAndPort(s string) (HostAndPort, error) {
	if s == "" {
		return HostAndPort{}, fmt.Errorf("empty host string")
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// no port given
		return HostAndPort{Host: s, Port: defaultMongodPort}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return HostAndPort{}, fmt.Errorf("malformed port in host string '%s'", s)
	}
	return HostAndPort{Host: host, Port: port}, nil
}

// ReplSetMetadata is replication progress of a sync source as reported in $replData.
type ReplSetMetadata struct {
	Term            int64
	LastOpCommitted OpTime
	LastOpVisible   OpTime
	ConfigVersion   int64
	ReplicaSetID    primitive.ObjectID
	PrimaryIndex    int
	SyncSourceIndex int
}

// OplogQueryMetadata is per-query replication progress as reported in $oplogQueryData.
type OplogQueryMetadata struct {
	LastOpCommitted OpTime
	LastOpApplied   OpTime
	RBID            int
	PrimaryIndex    int
	SyncSourceIndex int
}

// HasSyncSource reports whether the reporting node syncs from another member.
func (m ReplSetMetadata) HasSyncSource() bool {
	return m.SyncSourceIndex != NoSyncSource
}

// HasSyncSource reports whether the reporting node syncs from another member.
func (m OplogQueryMetadata) HasSyncSource() bool {
	return m.SyncSourceIndex != NoSyncSource
}

type replSetMetadataDoc struct {
	Term            int64              `bson:"term"`
	LastOpCommitted BsonOpTime         `bson:"lastOpCommitted"`
	LastOpVisible   BsonOpTime         `bson:"lastOpVisible"`
	ConfigVersion   int64              `bson:"configVersion"`
	ReplicaSetID    primitive.ObjectID `bson:"replicaSetId"`
	PrimaryIndex    int                `bson:"primaryIndex"`
	SyncSourceIndex int                `bson:"syncSourceIndex"`
}

type oplogQueryMetadataDoc struct {
	LastOpCommitted BsonOpTime `bson:"lastOpCommitted"`
	LastOpApplied   BsonOpTime `bson:"lastOpApplied"`
	RBID            int        `bson:"rbid"`
	PrimaryIndex    int        `bson:"primaryIndex"`
	SyncSourceIndex int        `bson:"syncSourceIndex"`
}

// MetadataFromReply extracts replication metadata from raw server reply.
// Query metadata is optional and returned as nil when the reply has none.
func MetadataFromReply(reply bson.Raw) (ReplSetMetadata, *OplogQueryMetadata, error) {
	rv, err := reply.LookupErr(replSetMetadataField)
	if err != nil {
		return ReplSetMetadata{}, nil, fmt.Errorf("reply has no '%s' field: %w", replSetMetadataField, err)
	}
	// absent syncSourceIndex means the node has no sync source
	rd := replSetMetadataDoc{SyncSourceIndex: NoSyncSource}
	if err := rv.Unmarshal(&rd); err != nil {
		return ReplSetMetadata{}, nil, fmt.Errorf("can not decode '%s': %w", replSetMetadataField, err)
	}
	replMeta := ReplSetMetadata{
		Term:            rd.Term,
		LastOpCommitted: OpTimeFromBson(rd.LastOpCommitted),
		LastOpVisible:   OpTimeFromBson(rd.LastOpVisible),
		ConfigVersion:   rd.ConfigVersion,
		ReplicaSetID:    rd.ReplicaSetID,
		PrimaryIndex:    rd.PrimaryIndex,
		SyncSourceIndex: rd.SyncSourceIndex,
	}

	ov, err := reply.LookupErr(oplogQueryMetadataField)
	if err != nil {
		return replMeta, nil, nil
	}
	od := oplogQueryMetadataDoc{SyncSourceIndex: NoSyncSource}
	if err := ov.Unmarshal(&od); err != nil {
		return ReplSetMetadata{}, nil, fmt.Errorf("can not decode '%s': %w", oplogQueryMetadataField, err)
	}
	return replMeta, &OplogQueryMetadata{
		LastOpCommitted: OpTimeFromBson(od.LastOpCommitted),
		LastOpApplied:   OpTimeFromBson(od.LastOpApplied),
		RBID:            od.RBID,
		PrimaryIndex:    od.PrimaryIndex,
		SyncSourceIndex: od.SyncSourceIndex,
	}, nil
}

// OpTimeWithTerm is a consistent snapshot of current term and commit point.
type OpTimeWithTerm struct {
	Term   int64
	OpTime OpTime
}
