package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeroom-backend/internal/platform/db"
)

func strp(s string) *string { return &s }

func TestStoreRoundTripsMeta(t *testing.T) {
	conn := db.NewTestDB(t)
	st := NewStore(conn)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.Insert(ctx, &Notification{
		ID: "n1", Message: "mine", ToUser: strp("u1"), ItemID: strp("i1"),
		Type: TypeLowStock, Meta: LowStockMeta{ItemName: "Widget", Quantity: 3, Threshold: 20},
		CreatedAt: at,
	}))
	require.NoError(t, st.Insert(ctx, &Notification{
		ID: "n2", Message: "everyone", Type: TypeInfo, CreatedAt: at.Add(time.Minute),
	}))
	require.NoError(t, st.Insert(ctx, &Notification{
		ID: "n3", Message: "someone else", ToUser: strp("u2"), Type: TypeInfo, CreatedAt: at,
	}))

	got, total, err := st.List(ctx, ListFilter{UserID: "u1"}, db.Page{Limit: 10}.Normalize())
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, "n2", got[0].ID)
	assert.Equal(t, LowStockMeta{ItemName: "Widget", Quantity: 3, Threshold: 20}, got[1].Meta)
}

func TestStoreMarkRead(t *testing.T) {
	conn := db.NewTestDB(t)
	st := NewStore(conn)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, &Notification{
		ID: "n1", Message: "m", ToUser: strp("u1"), Type: TypeInfo, CreatedAt: time.Now().UTC(),
	}))

	ok, err := st.MarkRead(ctx, "n1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.MarkRead(ctx, "n1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	unread, _, err := st.List(ctx, ListFilter{UserID: "u1", UnreadOnly: true}, db.Page{}.Normalize())
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestDecodeMetaUnknownType(t *testing.T) {
	_, err := DecodeMeta(Type("bogus"), []byte(`{}`))
	assert.Error(t, err)
}
