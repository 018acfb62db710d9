package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

// MySQLContainer is a running MySQL server with ROW binlogs enabled.
type MySQLContainer struct {
	Addr     string
	User     string
	Password string
	DSN      string // database/sql DSN for the test database
}

// StartMySQL starts a MySQL 8 container configured for row-based
// replication and waits until it accepts connections.
func StartMySQL(t *testing.T, database string) *MySQLContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("test"),
		tcmysql.WithDatabase(database),
		testcontainers.WithCmd(
			"--server-id=1",
			"--log-bin=mysql-bin",
			"--binlog-format=ROW",
			"--binlog-row-image=FULL",
			"--binlog-row-metadata=FULL",
		),
	)
	if err != nil {
		t.Fatalf("start mysql container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get mysql host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("get mysql port: %v", err)
	}

	c := &MySQLContainer{
		Addr:     fmt.Sprintf("%s:%s", host, port.Port()),
		User:     "root",
		Password: "test",
	}
	c.DSN = fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", c.User, c.Password, c.Addr, database)

	for range 30 {
		db, err := sql.Open("mysql", c.DSN)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
			if err == nil {
				return c
			}
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("mysql not ready after 30s")
	return nil
}

// Exec runs a statement against the test database.
func (c *MySQLContainer) Exec(t *testing.T, query string, args ...any) {
	t.Helper()
	db, err := sql.Open("mysql", c.DSN)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
