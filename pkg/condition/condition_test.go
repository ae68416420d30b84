package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagkit/flagkit/pkg/condition"
)

func TestParse_PreservesKeyOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"flat object", `{"b":1,"a":2,"c":3}`},
		{"nested object", `{"z":{"y":true,"x":false},"a":null}`},
		{"arrays", `{"$or":[{"b":1},{"a":"two"}]}`},
		{"numbers keep literal form", `{"n":1.50,"m":1e3,"k":-0}`},
		{"escaped strings", `{"key":"line\nbreak \"quoted\""}`},
		{"empty object", `{}`},
		{"deep nesting", `{"$and":[{"$not":{"$or":[{"a":[1,2,3]}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node, err := condition.Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(condition.JSON(node)))
		})
	}
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "{", `{"a":}`, `{"a":1} trailing`, `[1,2`} {
		_, err := condition.Parse([]byte(input))
		require.ErrorIs(t, err, condition.ErrInvalidJSON, "input %q", input)
	}
}

func TestParseObject(t *testing.T) {
	t.Parallel()

	t.Run("empty input is the empty condition", func(t *testing.T) {
		t.Parallel()

		obj, err := condition.ParseObject(nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(condition.JSON(obj)))

		obj, err = condition.ParseObject([]byte("  \n"))
		require.NoError(t, err)
		assert.Equal(t, 0, obj.Len())
	})

	t.Run("rejects non-object documents", func(t *testing.T) {
		t.Parallel()

		_, err := condition.ParseObject([]byte(`[1,2]`))
		require.ErrorIs(t, err, condition.ErrInvalidJSON)

		_, err = condition.ParseObject([]byte(`"string"`))
		require.ErrorIs(t, err, condition.ErrInvalidJSON)
	})
}

func TestObject_FieldOperations(t *testing.T) {
	t.Parallel()

	obj := condition.NewObject(
		condition.Field{Key: "a", Value: condition.Number("1")},
		condition.Field{Key: "b", Value: condition.String("two")},
	)

	v, ok := obj.Get("b")
	require.True(t, ok)
	s, ok := v.(*condition.Leaf).StringValue()
	require.True(t, ok)
	assert.Equal(t, "two", s)

	obj.Set("a", condition.Bool(true))
	obj.Set("c", condition.Null())
	assert.Equal(t, `{"a":true,"b":"two","c":null}`, string(condition.JSON(obj)))

	assert.True(t, obj.Delete("b"))
	assert.False(t, obj.Delete("missing"))
	assert.Equal(t, `{"a":true,"c":null}`, string(condition.JSON(obj)))
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()

	orig, err := condition.ParseObject([]byte(`{"a":{"b":[1,2]}}`))
	require.NoError(t, err)

	cloned := orig.Clone().(*condition.Object)
	cloned.Set("a", condition.Bool(false))

	assert.Equal(t, `{"a":{"b":[1,2]}}`, string(condition.JSON(orig)))
	assert.Equal(t, `{"a":false}`, string(condition.JSON(cloned)))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a, err := condition.Parse([]byte(`{"x":1}`))
	require.NoError(t, err)
	b, err := condition.Parse([]byte(`{"x":1}`))
	require.NoError(t, err)
	c, err := condition.Parse([]byte(`{"x":2}`))
	require.NoError(t, err)

	assert.True(t, condition.Equal(a, b))
	assert.False(t, condition.Equal(a, c))
}
