package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	type status string
	ten := int64(10)
	var nilPtr *int64

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"nil pointer", nilPtr, nil},
		{"pointer", &ten, int64(10)},
		{"int", 7, int64(7)},
		{"integral float", 7.0, int64(7)},
		{"fraction", 2.5, 2.5},
		{"named string", status("issued"), "issued"},
		{"bool", true, true},
		{"slice", []int{1, 2}, "[1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.in))
		})
	}
}

func TestMatches(t *testing.T) {
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"customer_id":4,"status":"pending","delivery_note_id":null}`), &fields))

	assert.True(t, Matches(fields, nil))
	assert.True(t, Matches(fields, Filter{"customer_id": int64(4)}))
	assert.True(t, Matches(fields, Filter{"customer_id": 4, "status": DeliveryPending}))
	assert.True(t, Matches(fields, Filter{"delivery_note_id": nil}))
	assert.True(t, Matches(fields, Filter{"missing": nil}))

	assert.False(t, Matches(fields, Filter{"customer_id": 5}))
	assert.False(t, Matches(fields, Filter{"status": "delivered"}))
	assert.False(t, Matches(fields, Filter{"missing": 1}))
}

func TestDocID(t *testing.T) {
	id, err := DocID([]byte(`{"id":42,"name":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = DocID([]byte(`not json`))
	assert.Error(t, err)
}
