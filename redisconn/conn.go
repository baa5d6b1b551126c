package redisconn

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/joomcode/errorx"

	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/resp"
)

// Request is an alias for redis.Request
type Request = redis.Request

const (
	connDisconnected = 0
	connConnecting   = 1
	connConnected    = 2
	connClosed       = 3

	defaultReconnectPause    = 100 * time.Millisecond
	defaultMaxReconnectPause = 5 * time.Second
	defaultDialTimeout       = 1 * time.Second
	defaultKeepAlive         = 300 * time.Millisecond
	defaultIOTimeout         = 1 * time.Second
)

// Opts - options for Connection
type Opts struct {
	// DB - database number
	DB int
	// Password for AUTH
	Password string
	// Encoder serializes arguments and deserializes bulk replies.
	// Default is redis.BytesEncoder.
	Encoder redis.Encoder
	// AutoReconnect - reestablish broken connection in background.
	AutoReconnect bool
	// ReconnectPause is an initial pause between reconnection attempts. It grows exponentially
	// up to MaxReconnectPause.
	ReconnectPause time.Duration
	// MaxReconnectPause - upper limit of pause between reconnection attempts.
	MaxReconnectPause time.Duration
	// DialTimeout is timeout for net.Dialer
	DialTimeout time.Duration
	// IOTimeout - timeout on read/write to socket.
	// If IOTimeout == 0, then it is set to 1 second
	// If IOTimeout < 0, then timeout is disabled
	IOTimeout time.Duration
	// TCPKeepAlive - KeepAlive parameter for net.Dialer
	TCPKeepAlive time.Duration
	// Handle is returned with Connection.Handle()
	Handle interface{}
	// Logger
	Logger Logger
}

// Connection is a connection to single redis server.
type Connection struct {
	ctx    context.Context
	cancel context.CancelFunc
	state  uint32
	// pending is a number of requests in flight or waiting for their turn.
	pending int32

	id   string
	addr string
	opts Opts

	// mutex serializes requests.
	mutex sync.Mutex

	// sockMutex protects socket fields.
	sockMutex sync.Mutex
	c         net.Conn
	r         *bufio.Reader
	w         *bufio.Writer
}

// Connect establishes new connection to redis server.
// Connect will return error if connection could not be established.
// Connection is closed when ctx is closed, or Close is called.
func Connect(ctx context.Context, addr string, opts Opts) (conn *Connection, err error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.New("no context is given")
	}
	if addr == "" {
		return nil, redis.ErrNoAddressProvided.New("no address is given")
	}
	conn = &Connection{
		id:   uuid.NewString(),
		addr: addr,
		opts: opts,
	}
	conn.ctx, conn.cancel = context.WithCancel(ctx)

	if conn.opts.Encoder == nil {
		conn.opts.Encoder = redis.BytesEncoder{}
	}

	if conn.opts.ReconnectPause <= 0 {
		conn.opts.ReconnectPause = defaultReconnectPause
	}
	if conn.opts.MaxReconnectPause < conn.opts.ReconnectPause {
		conn.opts.MaxReconnectPause = defaultMaxReconnectPause
		if conn.opts.MaxReconnectPause < conn.opts.ReconnectPause {
			conn.opts.MaxReconnectPause = conn.opts.ReconnectPause
		}
	}

	if conn.opts.DialTimeout <= 0 {
		conn.opts.DialTimeout = defaultDialTimeout
	}

	if conn.opts.TCPKeepAlive == 0 {
		conn.opts.TCPKeepAlive = defaultKeepAlive
	} else if conn.opts.TCPKeepAlive < 0 {
		conn.opts.TCPKeepAlive = 0
	}

	if conn.opts.IOTimeout == 0 {
		conn.opts.IOTimeout = defaultIOTimeout
	} else if conn.opts.IOTimeout < 0 {
		conn.opts.IOTimeout = 0
	}

	if conn.opts.Logger == nil {
		conn.opts.Logger = ZapLogger{}
	}

	if err = conn.createConnection(); err != nil {
		conn.cancel()
		return nil, err
	}

	context.AfterFunc(conn.ctx, func() { conn.Close() })

	return conn, nil
}

// ID returns unique identifier of connection.
func (conn *Connection) ID() string {
	return conn.id
}

// Addr returns configured address.
func (conn *Connection) Addr() string {
	return conn.addr
}

// Handle returns user specified handle from Opts
func (conn *Connection) Handle() interface{} {
	return conn.opts.Handle
}

// IsConnected returns true if connection is established now.
func (conn *Connection) IsConnected() bool {
	return atomic.LoadUint32(&conn.state) == connConnected
}

// IsBusy returns true if some request is executed or waits for execution on this connection.
func (conn *Connection) IsBusy() bool {
	return atomic.LoadInt32(&conn.pending) > 0
}

// RemoteAddr is address of Redis socket
func (conn *Connection) RemoteAddr() string {
	conn.sockMutex.Lock()
	defer conn.sockMutex.Unlock()
	if conn.c == nil {
		return ""
	}
	return conn.c.RemoteAddr().String()
}

// LocalAddr is outgoing socket addr
func (conn *Connection) LocalAddr() string {
	conn.sockMutex.Lock()
	defer conn.sockMutex.Unlock()
	if conn.c == nil {
		return ""
	}
	return conn.c.LocalAddr().String()
}

// Close closes connection forever.
func (conn *Connection) Close() error {
	conn.sockMutex.Lock()
	if atomic.LoadUint32(&conn.state) == connClosed {
		conn.sockMutex.Unlock()
		return nil
	}
	atomic.StoreUint32(&conn.state, connClosed)
	c := conn.c
	conn.c, conn.r, conn.w = nil, nil, nil
	conn.sockMutex.Unlock()

	conn.cancel()
	var err error
	if c != nil {
		err = c.Close()
	}
	conn.report(LogContextClosed{Error: conn.ctx.Err()})
	return err
}

func (conn *Connection) String() string {
	return fmt.Sprintf("*redisconn.Connection{addr: %s, id: %s}", conn.addr, conn.id)
}

// Do executes command and returns its result.
// Arguments are serialized with Opts.Encoder, bulk strings of result are deserialized with it.
// Redis error reply is returned as error of type redis.ErrResult, and connection remains usable.
func (conn *Connection) Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	atomic.AddInt32(&conn.pending, 1)
	defer atomic.AddInt32(&conn.pending, -1)

	args, err := redis.EncodeArgs(conn.opts.Encoder, args)
	if err != nil {
		return nil, conn.decorate(err, cmd)
	}
	res, err := conn.roundTrip(ctx, redis.Req(cmd, args...))
	if err != nil {
		return nil, err
	}
	return redis.DecodeReply(conn.opts.Encoder, res)
}

// Ping sends PING and checks response.
func (conn *Connection) Ping(ctx context.Context) error {
	res, err := conn.raw(ctx, redis.Req("PING"))
	if err != nil {
		return err
	}
	if str, ok := res.(string); !ok || str != "PONG" {
		return redis.ErrPing.New("ping response mismatch").
			WithProperty(EKConnection, conn).
			WithProperty(redis.EKResponse, res)
	}
	return nil
}

// ReadOnly sends READONLY, so replica will serve read requests for slots it replicates.
func (conn *Connection) ReadOnly(ctx context.Context) error {
	res, err := conn.raw(ctx, redis.Req("READONLY"))
	if err != nil {
		return err
	}
	if str, ok := res.(string); !ok || str != "OK" {
		return redis.ErrResponseUnexpected.New("READONLY response mismatch").
			WithProperty(EKConnection, conn).
			WithProperty(redis.EKResponse, res)
	}
	return nil
}

// ClusterNodes returns raw text of CLUSTER NODES response.
// It doesn't pass through Encoder.
func (conn *Connection) ClusterNodes(ctx context.Context) ([]byte, error) {
	res, err := conn.raw(ctx, redis.Req("CLUSTER NODES"))
	if err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, redis.ErrResponseUnexpected.New("CLUSTER NODES response is not a bulk string").
		WithProperty(EKConnection, conn).
		WithProperty(redis.EKResponse, res)
}

// raw executes request without encoding.
func (conn *Connection) raw(ctx context.Context, req Request) (interface{}, error) {
	atomic.AddInt32(&conn.pending, 1)
	defer atomic.AddInt32(&conn.pending, -1)
	return conn.roundTrip(ctx, req)
}

/********** private api **************/

func (conn *Connection) decorate(err error, cmd string) error {
	if rerr := redis.AsErrorx(err); rerr != nil {
		rerr = withNewProperty(rerr, EKConnection, conn)
		rerr = withNewProperty(rerr, EKConnID, conn.id)
		rerr = withNewProperty(rerr, redis.EKAddress, conn.addr)
		return withNewProperty(rerr, redis.EKCommand, cmd)
	}
	return err
}

func (conn *Connection) roundTrip(ctx context.Context, req Request) (interface{}, error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.New("no context is given")
	}

	conn.mutex.Lock()
	defer conn.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, conn.decorate(redis.ErrIO.Wrap(err, "request context is done"), req.Cmd)
	}

	conn.sockMutex.Lock()
	state := atomic.LoadUint32(&conn.state)
	c, r, w := conn.c, conn.r, conn.w
	conn.sockMutex.Unlock()

	if state == connClosed {
		return nil, conn.decorate(redis.ErrContextClosed.New("connection is closed"), req.Cmd)
	}
	if c == nil {
		return nil, conn.decorate(redis.ErrNotConnected.New("connection is not established"), req.Cmd)
	}

	buf, err := resp.AppendRequest(nil, req)
	if err != nil {
		return nil, conn.decorate(err, req.Cmd)
	}

	// closing socket is the only way to interrupt blocked read
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	start := time.Now()
	if _, err = w.Write(buf); err == nil {
		err = w.Flush()
	}
	if err != nil {
		err = redis.ErrIO.Wrap(conn.ctxErr(ctx, err), "write failed")
		conn.broken(c, err)
		return nil, conn.decorate(err, req.Cmd)
	}

	res := resp.Read(r)
	if !stop() {
		// context were cancelled after reply arrived, but socket is being closed anyway
		conn.broken(c, redis.ErrIO.Wrap(ctx.Err(), "request aborted"))
	}
	conn.opts.Logger.ReqStat(conn, req, res, time.Since(start).Nanoseconds())
	if rerr, ok := res.(*errorx.Error); ok {
		if redis.HardError(rerr) {
			if ctx.Err() != nil {
				rerr = redis.ErrIO.Wrap(ctx.Err(), "request aborted")
			}
			conn.broken(c, rerr)
		}
		return nil, conn.decorate(rerr, req.Cmd)
	}
	return res, nil
}

func (conn *Connection) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// broken drops socket c if it is still current one, and starts reconnection if allowed.
func (conn *Connection) broken(c net.Conn, neterr error) {
	conn.sockMutex.Lock()
	if conn.c != c {
		conn.sockMutex.Unlock()
		return
	}
	conn.c, conn.r, conn.w = nil, nil, nil
	disconnected := atomic.CompareAndSwapUint32(&conn.state, connConnected, connDisconnected)
	conn.sockMutex.Unlock()

	local, remote := c.LocalAddr().String(), c.RemoteAddr().String()
	c.Close()
	if !disconnected {
		return
	}
	conn.report(LogDisconnected{Error: neterr, LocalAddr: local, RemoteAddr: remote})
	if conn.opts.AutoReconnect {
		go conn.reconnect()
	}
}

func (conn *Connection) reconnect() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = conn.opts.ReconnectPause
	b.MaxInterval = conn.opts.MaxReconnectPause
	b.MaxElapsedTime = 0
	b.Reset()

	op := func() error {
		err := conn.createConnection()
		if err == nil {
			return nil
		}
		if errorx.IsOfType(err, redis.ErrContextClosed) || errorx.IsOfType(err, redis.ErrAuth) {
			return backoff.Permanent(err)
		}
		return err
	}
	_ = backoff.Retry(op, backoff.WithContext(b, conn.ctx))
}

func (conn *Connection) createConnection() error {
	if !atomic.CompareAndSwapUint32(&conn.state, connDisconnected, connConnecting) {
		if atomic.LoadUint32(&conn.state) == connClosed {
			return redis.ErrContextClosed.New("connection is closed")
		}
		return nil
	}
	conn.report(LogConnecting{})

	c, r, w, err := conn.dial()
	if err != nil {
		atomic.CompareAndSwapUint32(&conn.state, connConnecting, connDisconnected)
		conn.report(LogConnectFailed{Error: err})
		return err
	}

	conn.sockMutex.Lock()
	if !atomic.CompareAndSwapUint32(&conn.state, connConnecting, connConnected) {
		conn.sockMutex.Unlock()
		c.Close()
		return redis.ErrContextClosed.New("connection is closed")
	}
	conn.c, conn.r, conn.w = c, r, w
	conn.sockMutex.Unlock()

	conn.report(LogConnected{
		LocalAddr:  c.LocalAddr().String(),
		RemoteAddr: c.RemoteAddr().String(),
	})
	return nil
}

func (conn *Connection) dial() (net.Conn, *bufio.Reader, *bufio.Writer, error) {
	var connection net.Conn
	var err error
	network := "tcp"
	address := conn.addr
	timeout := conn.opts.DialTimeout
	if address[0] == '.' || address[0] == '/' {
		network = "unix"
	} else if strings.HasPrefix(address, "unix://") {
		network = "unix"
		address = address[7:]
	} else if strings.HasPrefix(address, "tcp://") {
		address = address[6:]
	}
	dialer := net.Dialer{
		Timeout:       timeout,
		FallbackDelay: timeout / 2,
		KeepAlive:     conn.opts.TCPKeepAlive,
	}
	connection, err = dialer.DialContext(conn.ctx, network, address)
	if err != nil {
		return nil, nil, nil, redis.ErrDial.Wrap(err, "could not connect").
			WithProperty(redis.EKAddress, conn.addr)
	}
	dc := withIOTimeout(connection, conn.opts.IOTimeout)
	r := bufio.NewReaderSize(dc, 128*1024)
	w := bufio.NewWriterSize(dc, 128*1024)

	fail := func(err *errorx.Error) (net.Conn, *bufio.Reader, *bufio.Writer, error) {
		connection.Close()
		return nil, nil, nil, err.WithProperty(EKConnection, conn).WithProperty(redis.EKAddress, conn.addr)
	}

	var req []byte
	if conn.opts.Password != "" {
		req, _ = resp.AppendRequest(req, redis.Req("AUTH", conn.opts.Password))
	}
	req, _ = resp.AppendRequest(req, redis.Req("PING"))
	if conn.opts.DB != 0 {
		req, _ = resp.AppendRequest(req, redis.Req("SELECT", conn.opts.DB))
	}
	if _, err = dc.Write(req); err != nil {
		return fail(redis.ErrIO.Wrap(err, "handshake write failed"))
	}
	var res interface{}
	// Password response
	if conn.opts.Password != "" {
		res = resp.Read(r)
		if rerr, ok := res.(*errorx.Error); ok {
			if strings.Contains(rerr.Message(), "password") {
				return fail(redis.ErrAuth.Wrap(rerr, "authentication failed"))
			}
			return fail(redis.ErrConnSetup.Wrap(rerr, "AUTH failed"))
		}
	}
	// PING Response
	res = resp.Read(r)
	if rerr, ok := res.(*errorx.Error); ok {
		return fail(redis.ErrConnSetup.Wrap(rerr, "PING failed"))
	}
	if str, ok := res.(string); !ok || str != "PONG" {
		return fail(redis.ErrConnSetup.New("ping response mismatch").WithProperty(redis.EKResponse, res))
	}
	// SELECT DB Response
	if conn.opts.DB != 0 {
		res = resp.Read(r)
		if rerr, ok := res.(*errorx.Error); ok {
			return fail(redis.ErrConnSetup.Wrap(rerr, "SELECT failed").WithProperty(EKDb, conn.opts.DB))
		}
		if str, ok := res.(string); !ok || str != "OK" {
			return fail(redis.ErrConnSetup.New("SELECT db response mismatch").
				WithProperty(EKDb, conn.opts.DB).
				WithProperty(redis.EKResponse, res))
		}
	}

	return connection, r, w, nil
}
