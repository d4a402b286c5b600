package api

import (
	"context"
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports the number of connected live feed clients.
type ClientCounter interface {
	ClientCount() int
}
