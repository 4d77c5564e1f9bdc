package fields

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	m := NewMap(3)
	m.Set("Name", String("Roxy"))
	m.Set("City", String("New York"))
	m.Set("Latitude", Number(40.76))
	m.Set("Name", String("Roxy Theatre"))

	assert.Equal(t, []string{"Name", "City", "Latitude"}, m.Keys())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"Name":"Roxy Theatre","City":"New York","Latitude":40.76}`, string(out))
}

func TestMap_Delete(t *testing.T) {
	t.Parallel()

	m := NewMap(0)
	m.Set("a", Number(1))
	m.Set("b", Number(2))
	m.Set("c", Number(3))

	m.Delete("b")
	m.Delete("missing")

	assert.Equal(t, []string{"a", "c"}, m.Keys())
	assert.False(t, m.Has("b"))
	assert.Equal(t, 2, m.Len())
}

func TestMap_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantKeys []string
		wantErr  bool
	}{
		{
			name:     "object keeps document order",
			input:    `{"z":1,"a":"x","m":null}`,
			wantKeys: []string{"z", "a", "m"},
		},
		{
			name:     "null becomes empty map",
			input:    `null`,
			wantKeys: []string{},
		},
		{
			name:    "array rejected",
			input:   `[1,2]`,
			wantErr: true,
		},
		{
			name:    "invalid JSON rejected",
			input:   `{"a":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var m Map
			err := m.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, m.Keys())
		})
	}
}

func TestMap_Clone(t *testing.T) {
	t.Parallel()

	m := NewMap(0)
	m.Set("a", String("1"))

	c := m.Clone()
	c.Set("b", String("2"))

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
}

func TestMap_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Map
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Has("a"))
	assert.Nil(t, m.Keys())

	out, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}
