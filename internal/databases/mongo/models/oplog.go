package models

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	timestampDelimiter = "."

	// SupportedOplogVersion is the only oplog entry format version the applier accepts.
	SupportedOplogVersion = 2
)

// Timestamp represents oplog record uniq id.
type Timestamp struct {
	TS  uint32 `json:"ts"`
	Inc uint32 `json:"inc"`
}

// String returns text representation of Timestamp struct
func (ots Timestamp) String() string {
	return fmt.Sprintf("%d%s%d", ots.TS, timestampDelimiter, ots.Inc)
}

// TimestampFromStr builds Timestamp from string
func TimestampFromStr(s string) (Timestamp, error) {
	strs := strings.Split(s, timestampDelimiter)
	if len(strs) != 2 {
		return Timestamp{}, fmt.Errorf("can not split oplog ts string '%s': two parts expected", s)
	}

	ts, err := strconv.ParseUint(strs[0], 10, 32)
	if err != nil {
		return Timestamp{}, fmt.Errorf("can not convert ts string '%s': %w", strs[0], err)
	}
	inc, err := strconv.ParseUint(strs[1], 10, 32)
	if err != nil {
		return Timestamp{}, fmt.Errorf("can not convert inc string '%s': %w", strs[1], err)
	}

	return Timestamp{TS: uint32(ts), Inc: uint32(inc)}, nil
}

// MaxTS returns maximum of two timestamps.
func MaxTS(ots1, ots2 Timestamp) Timestamp {
	if LessTS(ots1, ots2) {
		return ots2
	}
	return ots1
}

// LessTS returns if first timestamp less than second
func LessTS(ots1, ots2 Timestamp) bool {
	if ots1.TS != ots2.TS {
		return ots1.TS < ots2.TS
	}
	return ots1.Inc < ots2.Inc
}

// TimestampFromBson builds Timestamp from BSON primitive
func TimestampFromBson(bts primitive.Timestamp) Timestamp {
	return Timestamp{TS: bts.T, Inc: bts.I}
}

// BsonTimestampFromOplogTS builds BSON primitive from Timestamp
func BsonTimestampFromOplogTS(ots Timestamp) primitive.Timestamp {
	return primitive.Timestamp{T: ots.TS, I: ots.Inc}
}

// OpTime is a position in the oplog qualified by the term it was written in.
type OpTime struct {
	TS   Timestamp `json:"ts"`
	Term int64     `json:"t"`
}

// String returns text representation of OpTime struct
func (ot OpTime) String() string {
	return fmt.Sprintf("{ts: %s, t: %d}", ot.TS, ot.Term)
}

// IsNull reports whether optime was never set.
func (ot OpTime) IsNull() bool {
	return ot == OpTime{}
}

// LessOpTime orders optimes by term first, then by timestamp.
func LessOpTime(ot1, ot2 OpTime) bool {
	if ot1.Term != ot2.Term {
		return ot1.Term < ot2.Term
	}
	return LessTS(ot1.TS, ot2.TS)
}

// MaxOpTime returns maximum of two optimes.
func MaxOpTime(ot1, ot2 OpTime) OpTime {
	if LessOpTime(ot1, ot2) {
		return ot2
	}
	return ot1
}

// BsonOpTime is the wire representation of OpTime.
type BsonOpTime struct {
	TS   primitive.Timestamp `bson:"ts" json:"ts"`
	Term int64               `bson:"t" json:"t"`
}

// OpTimeFromBson builds OpTime from its wire representation
func OpTimeFromBson(bot BsonOpTime) OpTime {
	return OpTime{TS: TimestampFromBson(bot.TS), Term: bot.Term}
}

// OplogEntry represents oplog raw document and its parsed metadata.
type OplogEntry struct {
	TS      Timestamp
	Term    int64
	Version int
	OP      string
	NS      string
	Data    []byte
}

// OpTime returns position of the entry in the oplog.
func (e OplogEntry) OpTime() OpTime {
	return OpTime{TS: e.TS, Term: e.Term}
}

// Batch is an ordered run of validated entries handed to the applier.
type Batch []OplogEntry

// Bytes returns total size of raw documents in batch.
func (b Batch) Bytes() int {
	size := 0
	for i := range b {
		size += len(b[i].Data)
	}
	return size
}

// OplogMeta is used to decode raw bson record.
type OplogMeta struct {
	TS      primitive.Timestamp `bson:"ts"`
	Term    *int64              `bson:"t,omitempty"`
	Version int                 `bson:"v"`
	NS      string              `bson:"ns"`
	Op      string              `bson:"op"`
}

// OplogEntryFromRaw tries to decode bytes to OplogEntry model
func OplogEntryFromRaw(raw []byte) (OplogEntry, error) {
	opMeta := OplogMeta{}
	if err := bson.Unmarshal(raw, &opMeta); err != nil {
		return OplogEntry{}, fmt.Errorf("oplog record decoding failed: %w", err)
	}
	var term int64
	if opMeta.Term != nil {
		term = *opMeta.Term
	}
	return OplogEntry{
		TS:      TimestampFromBson(opMeta.TS),
		Term:    term,
		Version: opMeta.Version,
		OP:      opMeta.Op,
		NS:      opMeta.NS,
		Data:    raw,
	}, nil
}
