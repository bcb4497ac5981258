package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestItemPatch_Apply(t *testing.T) {
	base := Item{ID: 7, ListID: 1, Description: "Buy milk", Done: false, ExternalID: "item-1"}

	tests := []struct {
		name  string
		patch ItemPatch
		want  Item
	}{
		{
			name:  "empty patch keeps item",
			patch: ItemPatch{},
			want:  base,
		},
		{
			name:  "description only",
			patch: ItemPatch{Description: strPtr("Buy oat milk")},
			want:  Item{ID: 7, ListID: 1, Description: "Buy oat milk", Done: false, ExternalID: "item-1"},
		},
		{
			name:  "done only",
			patch: ItemPatch{Done: boolPtr(true)},
			want:  Item{ID: 7, ListID: 1, Description: "Buy milk", Done: true, ExternalID: "item-1"},
		},
		{
			name:  "both fields",
			patch: ItemPatch{Description: strPtr("X"), Done: boolPtr(true)},
			want:  Item{ID: 7, ListID: 1, Description: "X", Done: true, ExternalID: "item-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.patch.Apply(base))
		})
	}

	// Apply works on a copy.
	assert.Equal(t, "Buy milk", base.Description)
}

func TestItemPatch_IsEmptyAndString(t *testing.T) {
	assert.True(t, ItemPatch{}.IsEmpty())
	assert.Equal(t, "{}", ItemPatch{}.String())

	p := ItemPatch{Description: strPtr("A")}
	assert.False(t, p.IsEmpty())
	assert.Equal(t, `{description:"A"}`, p.String())

	p = ItemPatch{Done: boolPtr(false)}
	assert.Equal(t, "{done:false}", p.String())

	p = ItemPatch{Description: strPtr("A"), Done: boolPtr(true)}
	assert.Equal(t, `{description:"A" done:true}`, p.String())
}

func TestItem_Validate(t *testing.T) {
	item := Item{ListID: 1, Description: "ok"}
	assert.NoError(t, item.Validate())

	item.ListID = 0
	assert.Error(t, item.Validate())

	// Stored items carry whatever the external system sent; only local
	// input is capped.
	item = Item{ListID: 1, Description: strings.Repeat("x", MaxDescriptionLength+1)}
	assert.NoError(t, item.Validate())
	assert.Error(t, item.ValidateInput())

	item.Description = strings.Repeat("x", MaxDescriptionLength)
	assert.NoError(t, item.ValidateInput())
}

func TestList_ValidateAndPatch(t *testing.T) {
	l := List{Name: "Groceries"}
	assert.NoError(t, l.Validate())
	assert.False(t, l.Linked())

	assert.Error(t, (&List{}).Validate())
	long := List{Name: strings.Repeat("n", MaxNameLength+1)}
	assert.NoError(t, long.Validate())
	assert.Error(t, long.ValidateInput())
	assert.Error(t, (&List{}).ValidateInput())

	renamed := ListPatch{Name: strPtr("Errands")}.Apply(l)
	assert.Equal(t, "Errands", renamed.Name)
	assert.Equal(t, "Groceries", l.Name)
	assert.True(t, ListPatch{}.IsEmpty())
}
