package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrTxAborted   = errors.New("db: transaction aborted")
)

// Op constants map to Redis/Valkey command names and SQL verbs for error context.
const (
	OpPing    = "PING"
	OpDel     = "DEL"
	OpExists  = "EXISTS"
	OpScan    = "SCAN"
	OpGet     = "GET"
	OpMGet    = "MGET"
	OpSet     = "SET"
	OpIncrBy  = "INCRBY"
	OpExpire  = "EXPIRE"
	OpXAdd    = "XADD"
	OpXLen    = "XLEN"
	OpExec    = "EXEC"
	OpMigrate = "MIGRATE"
	OpUpsert  = "UPSERT"
	OpSelect  = "SELECT"
	OpQuery   = "QUERY"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
