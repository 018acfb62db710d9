package event

// ChangeKind is the type of row change read from the binary log.
type ChangeKind int

const (
	KindInsert ChangeKind = iota + 1
	KindUpdate
	KindDelete
)

func (k ChangeKind) String() string {
	switch k {
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ParseChangeKind converts an operation name to a ChangeKind. Unrecognized
// names return 0.
func ParseChangeKind(s string) ChangeKind {
	switch s {
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	default:
		return 0
	}
}

// Change is a single row-level change. Inserts carry their values in After,
// deletes in Before, updates in both. A Change is never modified after the
// source hands it out.
type Change struct {
	Schema     string
	Table      string
	Kind       ChangeKind
	PrimaryKey string
	Before     Row
	After      Row
}

// Values returns the row that identifies the changed document: Before for
// deletes, After otherwise.
func (c Change) Values() Row {
	if c.Kind == KindDelete {
		return c.Before
	}
	return c.After
}
