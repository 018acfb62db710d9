package mysql

import (
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-mysql-org/go-mysql/mysql"

	"github.com/florinutz/binsync/event"
)

// toValue maps a decoded binlog cell onto an event.Value using the column's
// binlog type. Zero dates ("0000-00-00") have no calendar value and become
// null.
func toValue(colType byte, unsigned bool, v any) event.Value {
	if v == nil {
		return event.NullValue()
	}

	switch colType {
	case mysqldriver.MYSQL_TYPE_DATE, mysqldriver.MYSQL_TYPE_NEWDATE:
		return temporal(v, event.DateLayout, event.DateValue)
	case mysqldriver.MYSQL_TYPE_DATETIME, mysqldriver.MYSQL_TYPE_DATETIME2,
		mysqldriver.MYSQL_TYPE_TIMESTAMP, mysqldriver.MYSQL_TYPE_TIMESTAMP2:
		return temporal(v, event.DateTimeLayout, event.DateTimeValue)
	case mysqldriver.MYSQL_TYPE_DECIMAL, mysqldriver.MYSQL_TYPE_NEWDECIMAL:
		// Kept as text so precision survives the trip to the index.
		return event.StringValue(fmt.Sprint(v))
	case mysqldriver.MYSQL_TYPE_JSON:
		if b, ok := v.([]byte); ok {
			return event.StringValue(string(b))
		}
	}

	if unsigned && colType == mysqldriver.MYSQL_TYPE_INT24 {
		// MEDIUMINT arrives sign-extended from 24 bits.
		if n, ok := v.(int32); ok {
			return event.IntValue(int64(uint32(n) & 0xFFFFFF))
		}
	}
	if unsigned {
		switch n := v.(type) {
		case int8:
			return event.IntValue(int64(uint8(n)))
		case int16:
			return event.IntValue(int64(uint16(n)))
		case int32:
			return event.IntValue(int64(uint32(n)))
		case int64:
			return event.ValueOf(uint64(n))
		}
	}
	return event.ValueOf(v)
}

func temporal(v any, layout string, ctor func(time.Time) event.Value) event.Value {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return event.NullValue()
		}
		return ctor(t)
	case string:
		if strings.HasPrefix(t, "0000-00-00") {
			return event.NullValue()
		}
		parsed, err := time.Parse(layout, t)
		if err != nil {
			return event.StringValue(t)
		}
		return ctor(parsed)
	case []byte:
		return temporal(string(t), layout, ctor)
	default:
		return event.ValueOf(v)
	}
}
