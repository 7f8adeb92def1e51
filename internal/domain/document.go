package domain

// Metadata field names every data document carries. `_id` is the
// caller-supplied or generated UUID string; `_created`/`_updated` are set by
// the store, never by the caller.
const (
	FieldID      = "_id"
	FieldCreated = "_created"
	FieldUpdated = "_updated"
)

// TailLimit is the default page size for the most-recent-first tail read.
const TailLimit = 25
