package schema

import "fmt"

// MaxNameLength bounds list names accepted from local requests.
const MaxNameLength = 500

// List is a named collection of items.
type List struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ExternalID string `json:"externalId,omitempty"`
	Items      []Item `json:"items,omitempty"`
}

// Validate checks the fields every stored list needs.
func (l *List) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ValidateInput checks a list submitted by a local caller. It adds the
// length cap on top of Validate.
func (l *List) ValidateInput() error {
	if err := l.Validate(); err != nil {
		return err
	}
	if len(l.Name) > MaxNameLength {
		return fmt.Errorf("name must be %d characters or less (got %d)", MaxNameLength, len(l.Name))
	}
	return nil
}

// Linked reports whether the list is known to the external system.
func (l *List) Linked() bool {
	return l.ExternalID != ""
}

// ListPatch holds the optional fields of a list update.
type ListPatch struct {
	Name *string `json:"name,omitempty"`
}

// Apply returns a copy of l with the patch fields merged in.
func (p ListPatch) Apply(l List) List {
	if p.Name != nil {
		l.Name = *p.Name
	}
	return l
}

// IsEmpty reports whether the patch changes nothing.
func (p ListPatch) IsEmpty() bool {
	return p.Name == nil
}
