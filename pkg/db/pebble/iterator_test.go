package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterator(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	data := map[string]string{
		"a": "value-a",
		"b": "value-b",
		"c": "value-c",
		"d": "value-d",
		"e": "value-e",
	}
	for k, v := range data {
		require.NoError(t, store.Put([]byte(k), []byte(v)))
	}

	t.Run("full_range_iteration", func(t *testing.T) {
		iter, err := store.NewIterator(nil, nil)
		require.NoError(t, err)
		defer iter.Close() //nolint:errcheck

		var keys []string
		for iter.Next() {
			value, err := iter.Value()
			require.NoError(t, err)
			assert.Equal(t, data[string(iter.Key())], string(value))
			keys = append(keys, string(iter.Key()))
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keys)
	})

	t.Run("bounded_range_iteration", func(t *testing.T) {
		iter, err := store.NewIterator([]byte("b"), []byte("e"))
		require.NoError(t, err)
		defer iter.Close() //nolint:errcheck

		var keys []string
		for iter.Next() {
			keys = append(keys, string(iter.Key()))
		}
		assert.Equal(t, []string{"b", "c", "d"}, keys)
	})

	t.Run("iterator_validity", func(t *testing.T) {
		iter, err := store.NewIterator([]byte("a"), []byte("c"))
		require.NoError(t, err)
		defer iter.Close() //nolint:errcheck

		assert.False(t, iter.Valid())
		assert.True(t, iter.Next())
		assert.True(t, iter.Valid())
		assert.True(t, iter.Next())
		assert.False(t, iter.Next())
		assert.False(t, iter.Valid())

		_, err = iter.Value()
		assert.ErrorIs(t, err, ErrIteratorInvalid)
	})
}
