package external

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSnapshot_Aliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []List
	}{
		{
			name: "todoItems with isFinished",
			body: `[{"id":"ext-1","name":"Board","todoItems":[{"id":"item-1","description":"Task","isFinished":true}]}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{{ID: "item-1", Description: "Task", Done: true}}}},
		},
		{
			name: "items with done",
			body: `[{"id":"ext-1","name":"Board","items":[{"id":"item-1","description":"Task","done":true}]}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{{ID: "item-1", Description: "Task", Done: true}}}},
		},
		{
			name: "items preferred over todoItems",
			body: `[{"id":"ext-1","name":"Board","items":[{"id":"a","description":"A"}],"todoItems":[{"id":"b","description":"B"}]}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{{ID: "a", Description: "A"}}}},
		},
		{
			name: "empty items array still preferred",
			body: `[{"id":"ext-1","name":"Board","items":[],"todoItems":[{"id":"b","description":"B"}]}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{}}},
		},
		{
			name: "isFinished preferred over done",
			body: `[{"id":"ext-1","name":"Board","items":[{"id":"a","description":"A","isFinished":false,"done":true}]}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{{ID: "a", Description: "A", Done: false}}}},
		},
		{
			name: "completion defaults to false",
			body: `[{"id":"ext-1","name":"Board","items":[{"id":"a","description":"A"}]}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{{ID: "a", Description: "A"}}}},
		},
		{
			name: "no item sequence",
			body: `[{"id":"ext-1","name":"Board"}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{}}},
		},
		{
			name: "numeric ids normalized",
			body: `[{"id":12,"name":"Board","items":[{"id":34,"description":"A"}]}]`,
			want: []List{{ID: "12", Name: "Board", Items: []Item{{ID: "34", Description: "A"}}}},
		},
		{
			name: "entries without id skipped",
			body: `[{"name":"orphan"},{"id":"ext-1","name":"Board","items":[{"description":"no id"}]}]`,
			want: []List{{ID: "ext-1", Name: "Board", Items: []Item{}}},
		},
		{
			name: "empty snapshot",
			body: `[]`,
			want: []List{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSnapshot([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"id":"ext-1"}`))
	assert.Error(t, err)

	_, err = DecodeSnapshot([]byte(`[{"id":`))
	assert.Error(t, err)
}
