// Package external talks to the externally owned todo system.
//
// The external system is authoritative for what exists. Its JSON is not
// fully stable: a list carries its items under "items" or "todoItems" and
// an item reports completion as "isFinished" or "done". DecodeSnapshot is
// the only place those aliases are resolved; everything outbound uses the
// canonical "isFinished".
package external

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// List is an externally owned list as seen in a snapshot.
type List struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Item is an externally owned item as seen in a snapshot.
type Item struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Done        bool   `json:"isFinished"`
}

// DecodeSnapshot parses the body of GET /todolists.
//
// Item sequence: "items" is preferred, "todoItems" accepted, missing means
// empty. Completion: "isFinished" is preferred, "done" accepted, missing
// means false. Identifiers may be strings or numbers and are normalized to
// strings. Entries without an id cannot be joined and are skipped.
func DecodeSnapshot(data []byte) ([]List, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid snapshot: malformed JSON")
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("invalid snapshot: expected array, got %s", root.Type)
	}

	lists := make([]List, 0, len(root.Array()))
	root.ForEach(func(_, raw gjson.Result) bool {
		id := raw.Get("id").String()
		if id == "" {
			return true
		}

		list := List{
			ID:    id,
			Name:  raw.Get("name").String(),
			Items: []Item{},
		}

		itemsRaw := raw.Get("items")
		if !itemsRaw.IsArray() {
			itemsRaw = raw.Get("todoItems")
		}
		itemsRaw.ForEach(func(_, it gjson.Result) bool {
			itemID := it.Get("id").String()
			if itemID == "" {
				return true
			}
			list.Items = append(list.Items, Item{
				ID:          itemID,
				Description: it.Get("description").String(),
				Done:        completion(it),
			})
			return true
		})

		lists = append(lists, list)
		return true
	})

	return lists, nil
}

func completion(item gjson.Result) bool {
	if v := item.Get("isFinished"); v.Exists() {
		return v.Bool()
	}
	return item.Get("done").Bool()
}
