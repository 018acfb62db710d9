package event

import json "github.com/goccy/go-json"

// Action is the kind of write applied to the index.
type Action int

const (
	ActionUpsert Action = iota + 1 // full document replace, creates if absent
	ActionUpdate                   // partial document merge
	ActionDelete                   // remove by id, no-op if absent
)

func (a Action) String() string {
	switch a {
	case ActionUpsert:
		return "upsert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// bulkOverhead approximates the bytes a bulk action line spends on JSON
// punctuation and field names around index, type and id.
const bulkOverhead = 48

// Operation is an idempotent index write keyed by (Index, DocType, ID).
// Body is nil for deletes.
type Operation struct {
	Action  Action
	Index   string
	DocType string
	ID      string
	Body    Row
}

// Size returns the approximate number of bytes the operation occupies in a
// bulk request: the action line plus, when present, the document line.
func (o Operation) Size() int {
	n := bulkOverhead + len(o.Index) + len(o.DocType) + len(o.ID)
	if o.Body != nil {
		if b, err := json.Marshal(o.Body); err == nil {
			n += len(b) + 1
		}
	}
	return n
}

// Batch is an ordered group of operations committed to the sink together.
type Batch []Operation

// Size returns the sum of the operations' sizes.
func (b Batch) Size() int {
	var n int
	for _, op := range b {
		n += op.Size()
	}
	return n
}
