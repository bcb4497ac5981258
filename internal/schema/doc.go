// Package schema defines the todo list and item records shared by the store,
// the reconciler, the command queue and the notifier.
//
// # Identity
//
// Every record carries two identities:
//
//   - ID: assigned by the local store on insert, never sent outward
//   - ExternalID: assigned by the external system, empty until the record
//     has been pushed to or pulled from it
//
// ExternalID is the join key used during reconciliation. A record with an
// empty ExternalID was created locally and has not been pushed yet (or the
// push failed); reconciliation never deletes such a record.
//
// # Partial updates
//
// ItemPatch and ListPatch carry optional fields for update commands:
//
//	done := true
//	patch := schema.ItemPatch{Done: &done}
//	updated := patch.Apply(item)
//
// Fields left nil keep their current value.
package schema
