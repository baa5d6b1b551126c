package redisconn

import (
	"go.uber.org/zap"
)

// Logger is a type for custom event and stat reporter.
type Logger interface {
	// Report will be called when some events happens during connection's lifetime.
	// Default implementation just logs this information with zap.L().
	Report(conn *Connection, event LogEvent)
	// ReqStat is called after request receives it's answer with request/result information
	// and time spend to fulfill request.
	// Default implementation is no-op.
	ReqStat(conn *Connection, req Request, res interface{}, nanos int64)
}

func (conn *Connection) report(event LogEvent) {
	conn.opts.Logger.Report(conn, event)
}

// LogEvent is a sum-type for events to be logged.
type LogEvent interface {
	logEvent() // tagging method
}

// LogConnecting is an event logged when Connection starts dialing to redis.
type LogConnecting struct{}

// LogConnected is logged when Connection established connection to redis.
type LogConnected struct {
	LocalAddr  string // - local ip:port
	RemoteAddr string // - remote ip:port
}

// LogConnectFailed is logged when connection establishing were unsuccessful.
type LogConnectFailed struct {
	Error error // - failure reason
}

// LogDisconnected is logged when connection were broken.
type LogDisconnected struct {
	Error      error  // - disconnection reason
	LocalAddr  string // - local ip:port
	RemoteAddr string // - remote ip:port
}

// LogContextClosed is logged when Connection's context were closed, or Connection.Close() called.
// Ie when connection is explicitly closed by user.
type LogContextClosed struct {
	Error error // - ctx.Err()
}

func (LogConnecting) logEvent()    {}
func (LogConnected) logEvent()     {}
func (LogConnectFailed) logEvent() {}
func (LogDisconnected) logEvent()  {}
func (LogContextClosed) logEvent() {}

// ZapLogger is a Logger implementation which writes events with zap.
// If L is nil, zap.L() is used.
type ZapLogger struct {
	L *zap.Logger
}

func (d ZapLogger) logger() *zap.Logger {
	if d.L != nil {
		return d.L
	}
	return zap.L()
}

// Report implements Logger.Report.
func (d ZapLogger) Report(conn *Connection, event LogEvent) {
	l := d.logger().With(zap.String("addr", conn.Addr()), zap.String("conn_id", conn.ID()))
	switch ev := event.(type) {
	case LogConnecting:
		l.Debug("redis: connecting")
	case LogConnected:
		l.Info("redis: connected",
			zap.String("local_addr", ev.LocalAddr),
			zap.String("remote_addr", ev.RemoteAddr))
	case LogConnectFailed:
		l.Warn("redis: connection failed", zap.Error(ev.Error))
	case LogDisconnected:
		l.Warn("redis: connection broken",
			zap.String("local_addr", ev.LocalAddr),
			zap.String("remote_addr", ev.RemoteAddr),
			zap.Error(ev.Error))
	case LogContextClosed:
		l.Info("redis: connection explicitly closed", zap.NamedError("reason", ev.Error))
	default:
		l.Warn("redis: unexpected event", zap.Any("event", event))
	}
}

// ReqStat implements Logger.ReqStat.
func (d ZapLogger) ReqStat(conn *Connection, req Request, res interface{}, nanos int64) {
	// noop
}

// NoopLogger implements Logger with no logging at all.
type NoopLogger struct{}

// Report implements Logger.Report
func (d NoopLogger) Report(conn *Connection, event LogEvent) {}

// ReqStat implements Logger.ReqStat
func (d NoopLogger) ReqStat(conn *Connection, req Request, res interface{}, nanos int64) {}
