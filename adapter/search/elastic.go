package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/florinutz/binsync/event"
)

type bulkMeta struct {
	Index string `json:"_index"`
	Type  string `json:"_type,omitempty"`
	ID    string `json:"_id"`
}

type bulkUpdate struct {
	Doc         event.Row `json:"doc"`
	DocAsUpsert bool      `json:"doc_as_upsert"`
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

// encodeBulk renders the batch as a _bulk NDJSON body. Updates use
// doc_as_upsert so replaying an update after its document was deleted
// recreates it instead of failing.
func (s *Sink) encodeBulk(b event.Batch) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range b {
		meta := bulkMeta{Index: s.target(op), ID: op.ID}
		if s.cfg.DocTypes {
			meta.Type = op.DocType
		}

		var err error
		switch op.Action {
		case event.ActionUpsert:
			if err = enc.Encode(map[string]bulkMeta{"index": meta}); err == nil {
				err = enc.Encode(op.Body)
			}
		case event.ActionUpdate:
			if err = enc.Encode(map[string]bulkMeta{"update": meta}); err == nil {
				err = enc.Encode(bulkUpdate{Doc: op.Body, DocAsUpsert: true})
			}
		case event.ActionDelete:
			err = enc.Encode(map[string]bulkMeta{"delete": meta})
		default:
			err = fmt.Errorf("unknown action %v", op.Action)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s %s/%s: %w", op.Action, meta.Index, op.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func (s *Sink) commitBulk(ctx context.Context, b event.Batch) error {
	body, err := s.encodeBulk(b)
	if err != nil {
		return err
	}

	data, err := s.do(ctx, http.MethodPost, s.url+"/_bulk", "application/x-ndjson", body)
	if err != nil {
		return err
	}

	var resp bulkResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !resp.Errors {
		return nil
	}

	var failed int
	var first error
	for _, item := range resp.Items {
		for action, res := range item {
			if res.Status < 300 {
				continue
			}
			// Deleting a missing document is the desired end state.
			if action == "delete" && res.Status == http.StatusNotFound {
				continue
			}
			failed++
			if first == nil {
				first = fmt.Errorf("%s %s: status %d: %s", action, res.ID, res.Status, res.Error)
			}
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("bulk rejected %d of %d operations, first: %w", failed, len(b), first)
}
