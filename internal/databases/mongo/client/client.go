package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mongodb/mongo-tools-common/db"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	adminDatabaseName   = "admin"
	oplogDatabaseName   = "local"
	oplogCollectionName = "oplog.rs"
)

var (
	_ = []MongoDriver{&MongoClient{}}
	_ = []OplogCursor{&MongoOplogCursor{}, &BsonCursor{}}
)

// CmdResponse is used to unmarshal mongodb cmd responses
type CmdResponse struct {
	Ok     int    `bson:"ok"`
	ErrMsg string `bson:"errmsg,omitempty"`
}

type replSetGetConfigResponse struct {
	Config models.ReplSetConfig `bson:"config"`
}

// MongoDriver defines methods to work with mongodb.
type MongoDriver interface {
	TailOplogFrom(ctx context.Context, from models.Timestamp) (OplogCursor, error)
	ApplyOp(ctx context.Context, op db.Oplog) error
	ReplSetGetConfig(ctx context.Context) (models.ReplSetConfig, error)
	ReplicationMetadata(ctx context.Context) (models.ReplSetMetadata, *models.OplogQueryMetadata, error)
	Close(ctx context.Context) error
}

// OplogCursor defines methods to work with mongodb cursor.
type OplogCursor interface {
	Close(ctx context.Context) error
	Data() []byte
	Err() error
	Next(context.Context) bool
	Push([]byte) error
}

// pushback keeps a single document returned to a cursor
type pushback struct {
	doc []byte
}

// Push returns document back, so it will be returned by the next Next call
func (p *pushback) Push(data []byte) error {
	if p.doc != nil {
		return fmt.Errorf("cursor already has one unread pushed document")
	}
	p.doc = data
	return nil
}

func (p *pushback) pop() ([]byte, bool) {
	doc := p.doc
	p.doc = nil
	return doc, doc != nil
}

// MongoOplogCursor is OplogCursor over tailable mongo-driver cursor.
type MongoOplogCursor struct {
	*mongo.Cursor
	pushback
}

// NewMongoOplogCursor builds MongoOplogCursor.
func NewMongoOplogCursor(c *mongo.Cursor) *MongoOplogCursor {
	return &MongoOplogCursor{Cursor: c}
}

// Data returns current cursor document
func (m *MongoOplogCursor) Data() []byte {
	return m.Current
}

// Next returns pushed document or moves cursor forward
func (m *MongoOplogCursor) Next(ctx context.Context) bool {
	if doc, ok := m.pop(); ok {
		m.Current = doc
		return true
	}
	return m.Cursor.Next(ctx)
}

// BsonCursor is OplogCursor over stream of concatenated bson documents.
type BsonCursor struct {
	pushback
	r    io.Reader
	data []byte
	err  error
}

// NewBsonCursor builds BsonCursor.
func NewBsonCursor(r io.Reader) *BsonCursor {
	return &BsonCursor{r: r}
}

// Next reads next document from stream, stream end or read error stops cursor
func (b *BsonCursor) Next(_ context.Context) bool {
	if doc, ok := b.pop(); ok {
		b.data = doc
		return true
	}
	if b.r == nil || b.err != nil {
		return false
	}
	raw, err := bson.NewFromIOReader(b.r)
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		b.err = fmt.Errorf("error during read bson: %w", err)
		return false
	}
	b.data = raw
	return true
}

// Data returns current document
func (b *BsonCursor) Data() []byte {
	return b.data
}

// Err returns stream read error
func (b *BsonCursor) Err() error {
	return b.err
}

// Close does nothing, stream is owned by caller
func (b *BsonCursor) Close(_ context.Context) error {
	return nil
}

// MongoClient implements MongoDriver
type MongoClient struct {
	c *mongo.Client
}

// NewMongoClient builds MongoClient
func NewMongoClient(ctx context.Context, uri string) (*MongoClient, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return &MongoClient{c: client}, client.Ping(ctx, nil)
}

// Close disconnects from mongodb
func (mc *MongoClient) Close(ctx context.Context) error {
	return mc.c.Disconnect(ctx)
}

// TailOplogFrom gives OplogCursor to tail oplog from
func (mc *MongoClient) TailOplogFrom(ctx context.Context, from models.Timestamp) (OplogCursor, error) {
	coll, err := mc.getOplogCollection(ctx)
	if err != nil {
		return nil, err
	}

	bsonTS := models.BsonTimestampFromOplogTS(from)
	filter := bson.M{"ts": bson.M{"$gte": bsonTS}}
	cur, err := coll.Find(ctx, filter, options.Find().SetCursorType(options.TailableAwait))

	if err == nil && cur.ID() == 0 {
		err = fmt.Errorf("dead cursor from oplog find")
	}
	if err != nil {
		return nil, fmt.Errorf("oplog lookup failed: %w", err)
	}

	return NewMongoOplogCursor(cur), nil
}

// ReplicationMetadata fetches replication progress of the node the client is connected to.
func (mc *MongoClient) ReplicationMetadata(ctx context.Context) (models.ReplSetMetadata, *models.OplogQueryMetadata, error) {
	cmd := bson.D{
		{Key: "find", Value: oplogCollectionName},
		{Key: "sort", Value: bson.D{{Key: "$natural", Value: -1}}},
		{Key: "limit", Value: 1},
		{Key: "$replData", Value: 1},
		{Key: "$oplogQueryData", Value: 1},
	}
	reply, err := mc.c.Database(oplogDatabaseName).RunCommand(ctx, cmd).DecodeBytes()
	if err != nil {
		return models.ReplSetMetadata{}, nil, fmt.Errorf("can not fetch replication metadata: %w", err)
	}
	return models.MetadataFromReply(reply)
}

// ReplSetGetConfig fetches active replica set config
func (mc *MongoClient) ReplSetGetConfig(ctx context.Context) (models.ReplSetConfig, error) {
	resp := replSetGetConfigResponse{}
	err := mc.c.Database(adminDatabaseName).RunCommand(ctx, bson.D{{Key: "replSetGetConfig", Value: 1}}).Decode(&resp)
	if err != nil {
		return models.ReplSetConfig{}, fmt.Errorf("replSetGetConfig command failed: %w", err)
	}
	return resp.Config, nil
}

func (mc *MongoClient) getOplogCollection(ctx context.Context) (*mongo.Collection, error) {
	odb := mc.c.Database(oplogDatabaseName)
	colls, err := odb.ListCollectionNames(ctx, bson.M{"name": oplogCollectionName})
	if err != nil {
		return nil, fmt.Errorf("can not list collections in 'local' database: %w", err)
	}
	if len(colls) != 1 {
		return nil, fmt.Errorf("collection '%s' was not found in database '%s'",
			oplogCollectionName, oplogDatabaseName)
	}

	return odb.Collection(oplogCollectionName), nil
}

// ApplyOp applies single oplog entry with applyOps command
func (mc *MongoClient) ApplyOp(ctx context.Context, op db.Oplog) error {
	resp := CmdResponse{}
	err := mc.c.Database(adminDatabaseName).RunCommand(ctx, bson.M{"applyOps": []interface{}{op}}).Decode(&resp)
	if err != nil {
		return fmt.Errorf("applyOps command failed on %s at %v: %w", op.Namespace, op.Timestamp, err)
	}
	if resp.Ok != 1 {
		return fmt.Errorf("applyOps failed on %s at %v: %s", op.Namespace, op.Timestamp, resp.ErrMsg)
	}
	return nil
}
