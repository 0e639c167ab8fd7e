package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringProvider(t *testing.T) {
	s := newShop(t)
	cust := s.newCustomer(t, 1, "Acme")
	order := s.newOrder(t, 7, cust)
	require.NoError(t, order.Put(s.orderStatus, "new"))

	sp := NewStringProvider().
		Text("#").Value(s.orderID).
		Text(" ").Value(s.orderStatus).
		Text(" for ").ForeignKeyValue(s.orderCustomer, s.custName)
	assert.Equal(t, "#7 New for Acme", sp.String(order))

	require.NoError(t, order.Put(s.orderCustomer, nil))
	assert.Equal(t, "#7 New for ", sp.String(order))
}

func TestCompareStrings(t *testing.T) {
	assert.Negative(t, compareStrings("apple", "Banana"))
	assert.Zero(t, compareStrings("Apple", "apple"))
	assert.Positive(t, compareStrings("cherry", "Banana"))
}
