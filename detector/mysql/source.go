package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"

	"github.com/florinutz/binsync/detector"
	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/metrics"
	"github.com/florinutz/binsync/syncerr"

	_ "github.com/go-sql-driver/mysql"
)

const sourceName = "mysql_binlog"

// Config describes the MySQL server to replicate from and which tables to
// follow.
type Config struct {
	Addr     string // host:port
	User     string
	Password string
	ServerID uint32
	Flavor   string // "mysql" or "mariadb"
	Schemas  []string
	Tables   []string // schema.table; empty means every table in Schemas
	// PrimaryKeys overrides the document-id column per schema.table.
	PrimaryKeys map[string]string
}

// eventStream is the subset of *replication.BinlogStreamer the source reads.
type eventStream interface {
	GetEvent(ctx context.Context) (*replication.BinlogEvent, error)
}

type pendingChange struct {
	change event.Change
	pos    event.Position
}

// Source reads row events from a MySQL binlog and turns them into changes.
//
// Each change carries the position of the last transaction boundary seen
// before it (end of an XID or DDL event, or the resume point itself). A
// checkpoint at that position resumes at the start of the change's
// transaction, so a checkpoint is never ahead of what was delivered.
type Source struct {
	addr    string
	stream  eventStream
	closeFn func()
	tables  *tableCache
	schemas map[string]bool
	filter  map[string]bool
	logger  *slog.Logger

	file    string
	safe    event.Position
	pending []pendingChange
}

func newSource(addr string, stream eventStream, start event.Position, tables *tableCache, schemas, filter []string, logger *slog.Logger) *Source {
	s := &Source{
		addr:    addr,
		stream:  stream,
		tables:  tables,
		schemas: toSet(schemas),
		filter:  toSet(filter),
		logger:  logger,
		file:    start.File,
		safe:    start,
	}
	return s
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func (s *Source) Name() string { return sourceName }

// Next returns the next row change. It blocks while the binlog is idle and
// returns ctx.Err() when ctx ends; no event is lost in that case.
func (s *Source) Next(ctx context.Context) (event.Change, event.Position, error) {
	for len(s.pending) == 0 {
		ev, err := s.stream.GetEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return event.Change{}, event.Position{}, ctx.Err()
			}
			return event.Change{}, event.Position{}, &syncerr.SourceDisconnectedError{
				Source: sourceName,
				Err:    &syncerr.MySQLReplicationError{Addr: s.addr, Err: err},
			}
		}
		s.handle(ctx, ev)
	}

	p := s.pending[0]
	s.pending[0] = pendingChange{}
	s.pending = s.pending[1:]
	return p.change, p.pos, nil
}

// Position returns the most recent safe resume position.
func (s *Source) Position() event.Position { return s.safe }

func (s *Source) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *Source) handle(ctx context.Context, ev *replication.BinlogEvent) {
	metrics.BinlogEvents.WithLabelValues(ev.Header.EventType.String()).Inc()

	switch e := ev.Event.(type) {
	case *replication.RotateEvent:
		s.file = string(e.NextLogName)
		s.advance(event.Position{File: s.file, Offset: e.Position})
		s.logger.Debug("binlog rotated", "file", s.file, "pos", e.Position)

	case *replication.XIDEvent:
		s.advance(event.Position{File: s.file, Offset: uint64(ev.Header.LogPos)})

	case *replication.QueryEvent:
		q := strings.TrimSpace(string(e.Query))
		if strings.EqualFold(q, "BEGIN") {
			return
		}
		s.advance(event.Position{File: s.file, Offset: uint64(ev.Header.LogPos)})
		if !strings.EqualFold(q, "COMMIT") {
			s.schemaChanged(string(e.Schema), q)
		}

	case *replication.RowsEvent:
		s.rows(ctx, ev.Header, e)
	}
}

// schemaChanged drops cached layouts for the tables a DDL statement touches,
// or the whole cache when the statement cannot be attributed.
func (s *Source) schemaChanged(schema, query string) {
	tables, ok := ddlTables(schema, query)
	if !ok {
		s.logger.Debug("unattributed statement, dropping table cache", "query", query)
		s.tables.invalidate()
		return
	}
	if len(tables) > 0 {
		s.logger.Debug("table layout changed", "tables", tables)
		s.tables.forget(tables...)
	}
}

// advance moves the safe position forward. Positions never move backwards.
func (s *Source) advance(p event.Position) {
	if !p.Known() {
		return
	}
	if s.safe.Known() && ComparePositions(p, s.safe) < 0 {
		s.logger.Warn("ignoring backwards binlog position", "pos", p.String(), "safe", s.safe.String())
		return
	}
	s.safe = p
}

func (s *Source) rows(ctx context.Context, h *replication.EventHeader, e *replication.RowsEvent) {
	if e.Table == nil {
		return
	}
	schema := string(e.Table.Schema)
	table := string(e.Table.Table)

	if len(s.schemas) > 0 && !s.schemas[schema] {
		return
	}
	if len(s.filter) > 0 && !s.filter[schema+"."+table] {
		return
	}

	info := s.tables.resolve(ctx, e.Table)
	unsigned := e.Table.UnsignedMap()
	toRow := func(cells []any) event.Row {
		row := make(event.Row, len(cells))
		for i, v := range cells {
			var colType byte
			if i < len(e.Table.ColumnType) {
				colType = e.Table.ColumnType[i]
			}
			name := fmt.Sprintf("col_%d", i)
			if i < len(info.columns) {
				name = info.columns[i]
			}
			row[name] = toValue(colType, unsigned[i], v)
		}
		return row
	}

	kind := rowsKind(h, e)
	base := event.Change{Schema: schema, Table: table, Kind: kind, PrimaryKey: info.primaryKey}

	switch kind {
	case event.KindUpdate:
		// Rows alternate before/after images.
		for i := 0; i+1 < len(e.Rows); i += 2 {
			ch := base
			ch.Before = toRow(e.Rows[i])
			ch.After = toRow(e.Rows[i+1])
			s.push(ch)
		}
	case event.KindDelete:
		for _, r := range e.Rows {
			ch := base
			ch.Before = toRow(r)
			s.push(ch)
		}
	default:
		for _, r := range e.Rows {
			ch := base
			ch.After = toRow(r)
			s.push(ch)
		}
	}
}

func (s *Source) push(ch event.Change) {
	s.pending = append(s.pending, pendingChange{change: ch, pos: s.safe})
}

// rowsKind classifies a rows event. Unknown variants yield the zero kind,
// which the normalizer rejects as unsupported.
func rowsKind(h *replication.EventHeader, e *replication.RowsEvent) event.ChangeKind {
	switch h.EventType {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		return event.KindInsert
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return event.KindUpdate
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		return event.KindDelete
	}
	switch e.Type() {
	case replication.EnumRowsEventTypeInsert:
		return event.KindInsert
	case replication.EnumRowsEventTypeUpdate:
		return event.KindUpdate
	case replication.EnumRowsEventTypeDelete:
		return event.KindDelete
	}
	return 0
}

// Opener connects to MySQL and opens binlog sources.
type Opener struct {
	cfg    Config
	logger *slog.Logger
}

var _ detector.Opener = (*Opener)(nil)

// NewOpener creates an Opener for cfg.
func NewOpener(cfg Config, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Flavor == "" {
		cfg.Flavor = mysqldriver.MySQLFlavor
	}
	return &Opener{cfg: cfg, logger: logger.With("source", sourceName)}
}

// Open validates the server, then starts streaming at pos, or at the current
// end of the binlog when ok is false.
func (o *Opener) Open(ctx context.Context, pos event.Position, ok bool) (detector.Source, error) {
	host, portStr := parseAddr(o.cfg.Addr)
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parse port from addr %q: %w", o.cfg.Addr, err)
	}

	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s)/?timeout=5s", o.cfg.User, o.cfg.Password, o.cfg.Addr))
	if err != nil {
		return nil, &syncerr.MySQLReplicationError{Addr: o.cfg.Addr, Err: err}
	}

	if err := validateBinlogFormat(ctx, db); err != nil {
		_ = db.Close()
		return nil, &syncerr.MySQLReplicationError{Addr: o.cfg.Addr, Err: err}
	}

	start := pos
	if !ok {
		tail, err := currentBinlogPosition(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, &syncerr.MySQLReplicationError{Addr: o.cfg.Addr, Err: err}
		}
		start = fromBinlogPosition(tail)
	}
	binlogPos, err := toBinlogPosition(start)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	syncer := replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID:  o.cfg.ServerID,
		Flavor:    o.cfg.Flavor,
		Host:      host,
		Port:      uint16(port),
		User:      o.cfg.User,
		Password:  o.cfg.Password,
		ParseTime: true,
	})
	streamer, err := syncer.StartSync(binlogPos)
	if err != nil {
		syncer.Close()
		_ = db.Close()
		return nil, &syncerr.MySQLReplicationError{Addr: o.cfg.Addr, Err: fmt.Errorf("start sync: %w", err)}
	}

	o.logger.Info("binlog replication started",
		"addr", o.cfg.Addr,
		"server_id", o.cfg.ServerID,
		"file", start.File,
		"pos", start.Offset,
	)

	src := newSource(o.cfg.Addr, streamer, start,
		newTableCache(dbLookup{db: db}, o.cfg.PrimaryKeys, o.logger),
		o.cfg.Schemas, o.cfg.Tables, o.logger)
	src.closeFn = func() {
		syncer.Close()
		_ = db.Close()
	}
	return src, nil
}

// validateBinlogFormat checks that binlog_format is ROW.
func validateBinlogFormat(ctx context.Context, db *sql.DB) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var format string
	if err := db.QueryRowContext(queryCtx, "SELECT @@binlog_format").Scan(&format); err != nil {
		return fmt.Errorf("query binlog_format: %w", err)
	}
	if strings.ToUpper(format) != "ROW" {
		return fmt.Errorf("binlog_format is %q, must be ROW", format)
	}
	return nil
}

// currentBinlogPosition queries the server's current binlog position. MySQL
// 8.4 renamed SHOW MASTER STATUS, so both spellings are tried.
func currentBinlogPosition(ctx context.Context, db *sql.DB) (mysqldriver.Position, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lastErr error
	for _, stmt := range []string{"SHOW MASTER STATUS", "SHOW BINARY LOG STATUS"} {
		pos, err := queryStatus(queryCtx, db, stmt)
		if err == nil {
			return pos, nil
		}
		lastErr = err
	}
	return mysqldriver.Position{}, lastErr
}

func queryStatus(ctx context.Context, db *sql.DB, stmt string) (mysqldriver.Position, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return mysqldriver.Position{}, fmt.Errorf("%s: %w", strings.ToLower(stmt), err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return mysqldriver.Position{}, fmt.Errorf("%s returned no rows (is binary logging enabled?)", stmt)
	}

	// File, Position, Binlog_Do_DB, Binlog_Ignore_DB[, Executed_Gtid_Set]
	cols, err := rows.Columns()
	if err != nil {
		return mysqldriver.Position{}, err
	}
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return mysqldriver.Position{}, err
	}

	pos, err := strconv.ParseUint(vals[1].String, 10, 32)
	if err != nil {
		return mysqldriver.Position{}, fmt.Errorf("parse binlog position %q: %w", vals[1].String, err)
	}
	return mysqldriver.Position{Name: vals[0].String, Pos: uint32(pos)}, nil
}

// parseAddr splits host:port. A missing port defaults to 3306.
func parseAddr(addr string) (string, string) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "3306"
	}
	return addr[:idx], addr[idx+1:]
}
