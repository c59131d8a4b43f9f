package oplog

import (
	"github.com/stretchr/testify/mock"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func buildEntry(ts uint32, version int, op, ns string, id interface{}) models.OplogEntry {
	doc := bson.D{
		{Key: "ts", Value: primitive.Timestamp{T: ts, I: 1}},
		{Key: "t", Value: int64(1)},
		{Key: "v", Value: version},
		{Key: "op", Value: op},
		{Key: "ns", Value: ns},
	}
	switch op {
	case "u":
		doc = append(doc,
			bson.E{Key: "o", Value: bson.D{{Key: "$set", Value: bson.D{{Key: "x", Value: ts}}}}},
			bson.E{Key: "o2", Value: bson.D{{Key: "_id", Value: id}}})
	case "c":
		doc = append(doc, bson.E{Key: "o", Value: bson.D{{Key: "create", Value: "testc"}}})
	default:
		doc = append(doc, bson.E{Key: "o", Value: bson.D{{Key: "_id", Value: id}, {Key: "x", Value: ts}}})
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		panic(err)
	}
	entry, err := models.OplogEntryFromRaw(raw)
	if err != nil {
		panic(err)
	}
	return entry
}

func buildEntries(version int, tss ...uint32) []models.OplogEntry {
	entries := make([]models.OplogEntry, 0, len(tss))
	for _, ts := range tss {
		entries = append(entries, buildEntry(ts, version, "i", "testdb.testc", int(ts)))
	}
	return entries
}

func timestamps(entries []models.OplogEntry) []uint32 {
	tss := make([]uint32, 0, len(entries))
	for _, e := range entries {
		tss = append(tss, e.TS.TS)
	}
	return tss
}

// observerMock is a testify mock of Observer
type observerMock struct {
	mock.Mock
}

func (m *observerMock) OnBatchApplied(result BatchResult) {
	m.Called(result)
}
