package rediscluster

import (
	"context"

	"github.com/joomcode/redisrouter/redisconn"
)

// Conn is a connection to single cluster node.
// Pool only reads connected and busy state, it never changes it.
type Conn interface {
	// Addr returns address connection were dialed to.
	Addr() string
	// IsConnected returns true if connection is established now.
	IsConnected() bool
	// IsBusy returns true if connection executes some request now.
	IsBusy() bool
	// Do executes command and returns its result.
	// Redis error reply is returned as error.
	Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error)
	// ReadOnly switches connection to replica's read-only mode.
	ReadOnly(ctx context.Context) error
	// ClusterNodes returns raw CLUSTER NODES reply.
	ClusterNodes(ctx context.Context) ([]byte, error)
	// Close closes connection.
	Close() error
}

// DialFunc establishes Conn to addr.
type DialFunc func(ctx context.Context, addr string, opts redisconn.Opts) (Conn, error)

// DefaultDial establishes redisconn.Connection.
func DefaultDial(ctx context.Context, addr string, opts redisconn.Opts) (Conn, error) {
	conn, err := redisconn.Connect(ctx, addr, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var _ Conn = (*redisconn.Connection)(nil)
