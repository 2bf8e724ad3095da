package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerSinceAndLastPrice(t *testing.T) {
	var l Ledger
	_, ok := l.LastPrice()
	assert.False(t, ok)
	assert.Empty(t, l.Since(0))

	for i, price := range []string{"10", "10.5", "9.75"} {
		l.Append(Trade{ID: uint64(i + 1), Price: d(price), Quantity: d("1")})
	}

	assert.Len(t, l.All(), 3)
	last, ok := l.LastPrice()
	require.True(t, ok)
	assert.Equal(t, "9.75", last.String())

	since := l.Since(1)
	require.Len(t, since, 2)
	assert.Equal(t, uint64(2), since[0].ID)
	assert.Len(t, l.Since(0), 3)
	assert.Empty(t, l.Since(42))
}

func TestLedgerRejectsOutOfOrderIDs(t *testing.T) {
	var l Ledger
	l.Append(Trade{ID: 5})

	assert.Panics(t, func() { l.Append(Trade{ID: 5}) })
	assert.Panics(t, func() { l.Append(Trade{ID: 4}) })
	assert.Len(t, l.All(), 1)
}
