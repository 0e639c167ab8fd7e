package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUtilities(t *testing.T) {
	s := newShop(t)
	acme := s.newCustomer(t, 1, "Acme")
	globex := s.newCustomer(t, 2, "Globex")
	initech := s.newCustomer(t, 3, "Initech")
	require.NoError(t, initech.Put(s.custRating, 5))
	require.NoError(t, globex.Put(s.custRating, 5))
	require.NoError(t, globex.Put(s.custName, "Globex Corp"))
	all := []*Entity{acme, globex, initech}

	t.Run("modified", func(t *testing.T) {
		assert.Equal(t, []*Entity{globex}, Modified(all))
	})

	t.Run("keys and key values", func(t *testing.T) {
		keys := Keys(all, false)
		require.Len(t, keys, 3)
		assert.Equal(t, []any{1, 2, 3}, KeyValues(keys))
	})

	t.Run("original keys", func(t *testing.T) {
		require.NoError(t, acme.Put(s.custID, 10))
		t.Cleanup(func() { acme.Revert(s.custID) })
		assert.Equal(t, []any{1, 2, 3}, KeyValues(Keys(all, true)))
		assert.Equal(t, []any{10, 2, 3}, KeyValues(Keys(all, false)))
	})

	t.Run("map to key", func(t *testing.T) {
		m := MapToKey(all)
		require.Len(t, m, 3)
		assert.Same(t, globex, m[globex.Key().mapKey()])
	})

	t.Run("values", func(t *testing.T) {
		assert.Equal(t, []any{5, 5}, Values(s.custRating, all, false))
		assert.Equal(t, []any{nil, 5, 5}, Values(s.custRating, all, true))
		assert.Equal(t, []any{5}, DistinctValues(s.custRating, all))
	})

	t.Run("group by value", func(t *testing.T) {
		groups := GroupByValue(s.custRating, all)
		require.Len(t, groups, 2)
		assert.Nil(t, groups[0].Value)
		assert.Equal(t, []*Entity{acme}, groups[0].Entities)
		assert.Equal(t, 5, groups[1].Value)
		assert.Equal(t, []*Entity{globex, initech}, groups[1].Entities)
	})

	t.Run("group by entity id", func(t *testing.T) {
		order := s.newOrder(t, 1, acme)
		groups := GroupByEntityID(append([]*Entity{order}, all...))
		assert.Len(t, groups["customer"], 3)
		assert.Len(t, groups["order"], 1)

		keyGroups := GroupKeysByEntityID([]*Key{order.Key(), acme.Key(), globex.Key()})
		assert.Len(t, keyGroups["customer"], 2)
		assert.Len(t, keyGroups["order"], 1)
	})

	t.Run("copy all", func(t *testing.T) {
		copies := CopyAll(all)
		require.Len(t, copies, 3)
		for i := range all {
			assert.NotSame(t, all[i], copies[i])
			assert.True(t, copies[i].ValuesEqual(all[i]))
		}
	})

	t.Run("put all", func(t *testing.T) {
		copies := CopyAll(all)
		previous, err := PutAll(s.custRating, 1, copies)
		require.NoError(t, err)
		assert.Equal(t, []any{nil, 5, 5}, previous)
		assert.Equal(t, []any{1, 1, 1}, Values(s.custRating, copies, false))

		_, err = PutAll(s.custRating, "x", copies)
		require.ErrorIs(t, err, ErrTypeMismatch)
	})
}
