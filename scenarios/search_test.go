//go:build integration

package scenarios

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/florinutz/binsync"
	"github.com/florinutz/binsync/adapter/search"
	"github.com/florinutz/binsync/batch"
	"github.com/florinutz/binsync/testutil"
)

// bulkRecorder is a minimal Elasticsearch _bulk endpoint.
type bulkRecorder struct {
	mu      sync.Mutex
	actions []string // "index shop/items/1"
}

func (b *bulkRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/_bulk" {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{}`)
		return
	}
	body, _ := io.ReadAll(r.Body)
	sc := bufio.NewScanner(bytes.NewReader(body))
	var items []string
	for sc.Scan() {
		var meta map[string]struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &meta); err != nil {
			continue
		}
		for action, m := range meta {
			if m.Index == "" {
				continue
			}
			b.mu.Lock()
			b.actions = append(b.actions, action+" "+m.Index+"/"+m.ID)
			b.mu.Unlock()
			items = append(items, `{"`+action+`":{"status":200}}`)
			if action != "delete" {
				sc.Scan() // source line
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"errors":false,"items":[`+strings.Join(items, ",")+`]}`)
}

func (b *bulkRecorder) Actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.actions...)
}

func TestScenario_MySQLToElasticsearchBulk(t *testing.T) {
	my := testutil.StartMySQL(t, "shop")
	my.Exec(t, `CREATE TABLE items (id INT PRIMARY KEY, title VARCHAR(64))`)

	rec := &bulkRecorder{}
	es := httptest.NewServer(rec)
	defer es.Close()

	sink, err := search.New(search.Config{Engine: search.Elasticsearch, URL: es.URL}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	p := binsync.NewPipeline(opener(my, "shop"), sink,
		binsync.WithBatch(batch.Config{MaxCount: 100, MaxInterval: 200 * time.Millisecond}),
		binsync.WithLogger(testLogger()),
	)
	stop, _ := runPipeline(t, p)

	my.Exec(t, `INSERT INTO items VALUES (1, 'a'), (2, 'b')`)
	my.Exec(t, `UPDATE items SET title = 'c' WHERE id = 2`)
	my.Exec(t, `DELETE FROM items WHERE id = 1`)

	want := []string{"index shop_items/1", "index shop_items/2", "update shop_items/2", "delete shop_items/1"}
	eventually(t, "bulk requests", func() bool { return len(rec.Actions()) >= len(want) })
	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.Actions()
	if strings.Join(got, ";") != strings.Join(want, ";") {
		t.Errorf("bulk actions = %v, want %v", got, want)
	}
}
