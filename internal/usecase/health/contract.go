package health

import "context"

// DBPinger checks log store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// MirrorPinger checks relational mirror availability.
type MirrorPinger interface {
	PingContext(ctx context.Context) error
}

// Backlog reports metadata records whose mirror copy awaits repair.
type Backlog interface {
	Dirty() int
}
