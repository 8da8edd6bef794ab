package hydrate

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Base struct {
	ID uint
}

type Line struct {
	Base
	Price   decimal.Decimal
	Ref     uuid.UUID
	Note    sql.NullString
	Shipped *time.Time
}

type Basket struct {
	BasketID uint
	Lines    []*Line
	Best     *Line
}

func basketRecords() []*Record {
	shipped := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	line := func(id int64, price string, note interface{}, ship interface{}) *Record {
		r := newRecord("Line")
		r.Set("ID", id)
		r.Set("Price", decimal.RequireFromString(price))
		r.Set("Ref", uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
		r.Set("Note", note)
		r.Set("Shipped", ship)
		return r
	}
	l1 := line(1, "9.99", []byte("gift"), shipped)
	l2 := line(2, "0.50", nil, nil)

	b1 := newRecord("Basket")
	b1.Set("BasketID", int64(7))
	b1.Set("Lines", []*Record{l1, l2})
	b1.Set("Best", l1)

	b2 := newRecord("Basket")
	b2.Set("BasketID", int64(8))
	b2.Set("Lines", []*Record{})
	b2.Set("Best", nil)

	return []*Record{b1, b2}
}

func TestDecode(t *testing.T) {
	var baskets []Basket
	require.NoError(t, Decode(basketRecords(), &baskets))
	require.Len(t, baskets, 2)

	b := baskets[0]
	assert.Equal(t, uint(7), b.BasketID)
	require.Len(t, b.Lines, 2)
	assert.Equal(t, uint(1), b.Lines[0].ID, "embedded structs are squashed")
	assert.True(t, decimal.RequireFromString("9.99").Equal(b.Lines[0].Price))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", b.Lines[0].Ref.String())
	assert.Equal(t, sql.NullString{String: "gift", Valid: true}, b.Lines[0].Note)
	require.NotNil(t, b.Lines[0].Shipped)
	assert.Equal(t, 2020, b.Lines[0].Shipped.Year())
	assert.Equal(t, sql.NullString{}, b.Lines[1].Note)
	assert.Nil(t, b.Lines[1].Shipped)
	require.NotNil(t, b.Best)
	assert.Equal(t, uint(1), b.Best.ID)

	assert.Equal(t, uint(8), baskets[1].BasketID)
	assert.NotNil(t, baskets[1].Lines)
	assert.Empty(t, baskets[1].Lines)
	assert.Nil(t, baskets[1].Best)
}

func TestDecode_Outputs(t *testing.T) {
	records := basketRecords()

	t.Run("appends to slice", func(t *testing.T) {
		baskets := []*Basket{{BasketID: 1}}
		require.NoError(t, Decode(records, &baskets))
		require.Len(t, baskets, 3)
		assert.Equal(t, uint(1), baskets[0].BasketID)
		assert.Equal(t, uint(8), baskets[2].BasketID)
	})

	t.Run("first record into struct", func(t *testing.T) {
		var b Basket
		require.NoError(t, Decode(records, &b))
		assert.Equal(t, uint(7), b.BasketID)
	})

	t.Run("first record into pointer", func(t *testing.T) {
		var b *Basket
		require.NoError(t, Decode(records, &b))
		require.NotNil(t, b)
		assert.Equal(t, uint(7), b.BasketID)
	})

	t.Run("no records leave output untouched", func(t *testing.T) {
		b := Basket{BasketID: 3}
		require.NoError(t, Decode(nil, &b))
		assert.Equal(t, uint(3), b.BasketID)
	})

	t.Run("records", func(t *testing.T) {
		var got []*Record
		require.NoError(t, Decode(records, &got))
		assert.Equal(t, records, got)
	})

	t.Run("maps", func(t *testing.T) {
		var got []map[string]interface{}
		require.NoError(t, Decode(records, &got))
		require.Len(t, got, 2)
		assert.Equal(t, int64(8), got[1]["BasketID"])
	})
}

func TestDecode_Errors(t *testing.T) {
	records := basketRecords()

	var b Basket
	assert.EqualError(t, Decode(records, b), "hydrate: output of type hydrate.Basket can not be set")
	assert.Error(t, Decode(records, nil))
	var nilPtr *Basket
	assert.Error(t, Decode(records, nilPtr))

	bad := newRecord("Line")
	bad.Set("Note", int64(5))
	bad.Set("Price", "cheap")
	var lines []Line
	err := Decode([]*Record{bad}, &lines)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Price")
	assert.Empty(t, lines, "a failed decode appends nothing")
}
