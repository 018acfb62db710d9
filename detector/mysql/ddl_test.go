package mysql

import (
	"slices"
	"testing"
)

func TestDDLTables(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		want   []string
		wantOK bool
	}{
		{"alter", "ALTER TABLE orders ADD COLUMN note TEXT", []string{"shop.orders"}, true},
		{"qualified", "ALTER TABLE billing.invoices DROP COLUMN legacy", []string{"billing.invoices"}, true},
		{"rename via alter", "ALTER TABLE orders RENAME TO orders_old", []string{"shop.orders", "shop.orders_old"}, true},
		{"rename", "RENAME TABLE a TO b, c TO d", []string{"shop.a", "shop.b", "shop.c", "shop.d"}, true},
		{"create", "CREATE TABLE items (id INT PRIMARY KEY, added DATETIME DEFAULT CURRENT_TIMESTAMP)", []string{"shop.items"}, true},
		{"drop", "DROP TABLE IF EXISTS x, y", []string{"shop.x", "shop.y"}, true},
		{"truncate", "TRUNCATE TABLE orders", []string{"shop.orders"}, true},
		{"create index", "CREATE INDEX idx_sku ON orders (sku)", []string{"shop.orders"}, true},
		{"no layout change", "FLUSH PRIVILEGES", nil, true},
		{"drop database", "DROP DATABASE shop", nil, false},
		{"garbage", "THIS IS NOT SQL", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ddlTables("shop", tt.query)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("tables = %v, want %v", got, tt.want)
			}
		})
	}
}
