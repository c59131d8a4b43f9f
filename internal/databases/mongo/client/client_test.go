package client

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func rawDocs(t *testing.T, n int) *bytes.Buffer {
	buf := &bytes.Buffer{}
	for i := 1; i <= n; i++ {
		raw, err := bson.Marshal(bson.D{{Key: "n", Value: i}})
		require.NoError(t, err)
		buf.Write(raw)
	}
	return buf
}

func docNumber(data []byte) int32 {
	return bson.Raw(data).Lookup("n").Int32()
}

func TestPushback(t *testing.T) {
	p := pushback{}
	_, ok := p.pop()
	assert.False(t, ok)

	require.NoError(t, p.Push([]byte{'a'}))
	assert.EqualError(t, p.Push([]byte{'b'}), "cursor already has one unread pushed document")

	doc, ok := p.pop()
	assert.True(t, ok)
	assert.Equal(t, []byte{'a'}, doc)
	assert.NoError(t, p.Push([]byte{'c'}))
}

func TestMongoOplogCursor_PushedDocumentGoesFirst(t *testing.T) {
	ctx := context.TODO()
	cur := NewMongoOplogCursor(&mongo.Cursor{})
	require.NoError(t, cur.Push([]byte{'t'}))

	assert.True(t, cur.Next(ctx))
	assert.Equal(t, []byte{'t'}, cur.Data())
	assert.Nil(t, cur.doc)
}

func TestBsonCursor_Stream(t *testing.T) {
	ctx := context.TODO()
	buf := rawDocs(t, 3)
	buf.Write([]byte{0x10, 0, 0})

	cur := NewBsonCursor(buf)
	for i := 1; i <= 3; i++ {
		require.True(t, cur.Next(ctx))
		assert.Equal(t, int32(i), docNumber(cur.Data()))
	}
	assert.False(t, cur.Next(ctx))
	assert.Error(t, cur.Err())
	assert.False(t, cur.Next(ctx), "cursor must stay stopped after read error")
	assert.NoError(t, cur.Close(ctx))
}

func TestBsonCursor_PushBack(t *testing.T) {
	ctx := context.TODO()
	cur := NewBsonCursor(rawDocs(t, 2))

	require.True(t, cur.Next(ctx))
	first := cur.Data()
	require.NoError(t, cur.Push(first))

	require.True(t, cur.Next(ctx))
	assert.Equal(t, int32(1), docNumber(cur.Data()))
	require.True(t, cur.Next(ctx))
	assert.Equal(t, int32(2), docNumber(cur.Data()))
	assert.False(t, cur.Next(ctx))
	assert.NoError(t, cur.Err())
}

func TestBsonCursor_NoStream(t *testing.T) {
	cur := NewBsonCursor(nil)
	assert.False(t, cur.Next(context.TODO()))
	assert.NoError(t, cur.Err())
}
