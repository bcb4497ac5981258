package schema

import "fmt"

// MaxDescriptionLength bounds item descriptions accepted from local
// requests. Descriptions pulled from the external system are not capped.
const MaxDescriptionLength = 2000

// Item is a single entry owned by exactly one List.
type Item struct {
	ID          int64  `json:"id"`
	ListID      int64  `json:"todoListId"`
	Description string `json:"description"`
	Done        bool   `json:"done"`
	ExternalID  string `json:"externalId,omitempty"`
}

// Validate checks the fields every stored item needs.
func (i *Item) Validate() error {
	if i.ListID <= 0 {
		return fmt.Errorf("list id is required")
	}
	return nil
}

// ValidateInput checks an item submitted by a local caller. It adds the
// length cap on top of Validate.
func (i *Item) ValidateInput() error {
	if err := i.Validate(); err != nil {
		return err
	}
	return ValidateDescription(i.Description)
}

// ValidateDescription enforces MaxDescriptionLength.
func ValidateDescription(description string) error {
	if len(description) > MaxDescriptionLength {
		return fmt.Errorf("description must be %d characters or less (got %d)", MaxDescriptionLength, len(description))
	}
	return nil
}

// Linked reports whether the item is known to the external system.
func (i *Item) Linked() bool {
	return i.ExternalID != ""
}

// ItemPatch holds the optional fields of an item update command.
type ItemPatch struct {
	Description *string `json:"description,omitempty"`
	Done        *bool   `json:"done,omitempty"`
}

// Apply returns a copy of item with the patch fields merged in.
func (p ItemPatch) Apply(item Item) Item {
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Done != nil {
		item.Done = *p.Done
	}
	return item
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Description == nil && p.Done == nil
}

// String formats the set fields for log lines.
func (p ItemPatch) String() string {
	switch {
	case p.Description != nil && p.Done != nil:
		return fmt.Sprintf("{description:%q done:%t}", *p.Description, *p.Done)
	case p.Description != nil:
		return fmt.Sprintf("{description:%q}", *p.Description)
	case p.Done != nil:
		return fmt.Sprintf("{done:%t}", *p.Done)
	default:
		return "{}"
	}
}
