package search_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/florinutz/binsync/adapter"
	"github.com/florinutz/binsync/adapter/adaptertest"
	"github.com/florinutz/binsync/adapter/search"
)

func TestSearchSink_Contract(t *testing.T) {
	for _, engine := range []string{search.Elasticsearch, search.Meilisearch} {
		t.Run(engine, func(t *testing.T) {
			adaptertest.RunContractTests(t, func(t *testing.T) adapter.Sink {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = io.Copy(io.Discard, r.Body)
					// Bulk result and meilisearch task in one body.
					_, _ = io.WriteString(w, `{"errors":false,"items":[],"taskUid":7,"status":"succeeded"}`)
				}))
				t.Cleanup(srv.Close)
				s, err := search.New(search.Config{Engine: engine, URL: srv.URL, APIKey: "k"}, nil)
				if err != nil {
					t.Fatal(err)
				}
				return s
			})
		})
	}
}
