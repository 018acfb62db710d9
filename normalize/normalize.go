// Package normalize turns row changes read from the binary log into
// idempotent index operations.
package normalize

import (
	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/syncerr"
)

// Normalizer maps changes onto index operations under a field policy.
type Normalizer struct {
	policy      Policy
	indexPrefix string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithIndexPrefix prepends prefix to every index name derived from a schema.
func WithIndexPrefix(prefix string) Option {
	return func(n *Normalizer) {
		n.indexPrefix = prefix
	}
}

// New creates a Normalizer applying policy to every document body.
func New(policy Policy, opts ...Option) *Normalizer {
	n := &Normalizer{policy: policy}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts ch into an index operation. Inserts become upserts,
// updates become partial updates keyed by the post-image, deletes become
// deletes keyed by the pre-image. The id is read from the raw values before
// the policy runs, so an excluded primary key still identifies the document.
//
// Unknown change kinds yield a NormalizationError with ReasonUnsupportedKind;
// a missing or null primary key value yields ReasonMissingPrimaryKey.
func (n *Normalizer) Normalize(ch event.Change) (event.Operation, error) {
	var action event.Action
	switch ch.Kind {
	case event.KindInsert:
		action = event.ActionUpsert
	case event.KindUpdate:
		action = event.ActionUpdate
	case event.KindDelete:
		action = event.ActionDelete
	default:
		return event.Operation{}, n.fail(ch, syncerr.ReasonUnsupportedKind)
	}

	values := ch.Values()
	id, ok := documentID(values, ch.PrimaryKey)
	if !ok {
		return event.Operation{}, n.fail(ch, syncerr.ReasonMissingPrimaryKey)
	}

	op := event.Operation{
		Action:  action,
		Index:   n.indexPrefix + ch.Schema,
		DocType: ch.Table,
		ID:      id,
	}
	if action != event.ActionDelete {
		op.Body = n.policy.Apply(values)
	}
	return op, nil
}

func (n *Normalizer) fail(ch event.Change, reason syncerr.Reason) error {
	return &syncerr.NormalizationError{
		Reason: reason,
		Schema: ch.Schema,
		Table:  ch.Table,
		Kind:   ch.Kind,
		Field:  ch.PrimaryKey,
	}
}

// documentID renders the primary key value of row as a document id.
func documentID(row event.Row, field string) (string, bool) {
	if field == "" || row == nil {
		return "", false
	}
	v, ok := row[field]
	if !ok || v.IsNull() {
		return "", false
	}
	id := v.String()
	return id, id != ""
}
