package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/florinutz/binsync/event"
)

type importResult struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Document string `json:"document"`
}

// commitTypesense sends one run. Upserts replace documents, updates use
// emplace (merge, create when missing) and deletes go one by one.
func (s *Sink) commitTypesense(ctx context.Context, run event.Batch) error {
	coll := url.PathEscape(s.target(run[0]))

	if run[0].Action == event.ActionDelete {
		for _, op := range run {
			u := fmt.Sprintf("%s/collections/%s/documents/%s", s.url, coll, url.PathEscape(op.ID))
			_, err := s.do(ctx, http.MethodDelete, u, "", nil)
			var se *statusError
			if errors.As(err, &se) && se.code == http.StatusNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("delete %s/%s: %w", coll, op.ID, err)
			}
		}
		return nil
	}

	action := "upsert"
	if run[0].Action == event.ActionUpdate {
		action = "emplace"
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range run {
		doc, err := withID(op)
		if err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode document %s: %w", op.ID, err)
		}
	}

	u := fmt.Sprintf("%s/collections/%s/documents/import?action=%s", s.url, coll, action)
	data, err := s.do(ctx, http.MethodPost, u, "text/plain", buf.Bytes())
	if err != nil {
		return fmt.Errorf("import %s: %w", coll, err)
	}

	// The import endpoint answers 200 with one result line per document.
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for line := 0; sc.Scan(); line++ {
		var res importResult
		if err := json.Unmarshal(sc.Bytes(), &res); err != nil {
			return fmt.Errorf("decode import result: %w", err)
		}
		if !res.Success {
			id := ""
			if line < len(run) {
				id = run[line].ID
			}
			return fmt.Errorf("import %s: document %s rejected: %s", coll, id, res.Error)
		}
	}
	return sc.Err()
}
