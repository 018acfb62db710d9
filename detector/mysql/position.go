package mysql

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	mysqldriver "github.com/go-mysql-org/go-mysql/mysql"

	"github.com/florinutz/binsync/event"
)

// toBinlogPosition converts a checkpoint position to the replication
// library's form. Offsets above 4 GiB cannot exist in a single binlog file.
func toBinlogPosition(p event.Position) (mysqldriver.Position, error) {
	if p.Offset > 1<<32-1 {
		return mysqldriver.Position{}, fmt.Errorf("binlog offset %d out of range", p.Offset)
	}
	return mysqldriver.Position{Name: p.File, Pos: uint32(p.Offset)}, nil
}

func fromBinlogPosition(p mysqldriver.Position) event.Position {
	return event.Position{File: p.Name, Offset: uint64(p.Pos)}
}

// ComparePositions orders two binlog positions by file sequence number, then
// by offset. Files whose names carry no numeric suffix compare by name.
func ComparePositions(a, b event.Position) int {
	if a.File != b.File {
		sa, errA := parseFileSequence(a.File)
		sb, errB := parseFileSequence(b.File)
		if errA == nil && errB == nil && sa != sb {
			return cmp.Compare(sa, sb)
		}
		return strings.Compare(a.File, b.File)
	}
	return cmp.Compare(a.Offset, b.Offset)
}

// parseFileSequence extracts the numeric suffix from a binlog filename.
// Supports "mysql-bin.000003" and "000003" (numeric-only).
func parseFileSequence(filename string) (uint64, error) {
	numPart := filename
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		numPart = filename[idx+1:]
	}

	n, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse binlog file sequence %q: %w", filename, err)
	}
	return n, nil
}
