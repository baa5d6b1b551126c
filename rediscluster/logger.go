package rediscluster

import (
	"go.uber.org/zap"

	"github.com/joomcode/redisrouter/redisconn"
)

// Logger is used for logging topology and pool related events.
type Logger interface {
	// Report will be called when some events happens during topology's or pool's lifetime.
	// Default implementation logs this information with zap.L().
	Report(event LogEvent)
}

// LogEvent is a sumtype for events to be logged.
type LogEvent interface {
	logEvent()
}

// LogHostEvent is a wrapper for per-connection event
type LogHostEvent struct {
	Conn  *redisconn.Connection // Connection which triggers event.
	Event redisconn.LogEvent
}

// LogSeedFailed is logged when topology could not be learned from seed.
type LogSeedFailed struct {
	Seed  string
	Error error
}

// LogBadSlotToken is logged when CLUSTER NODES contains slot token which could not be parsed.
// Token is skipped.
type LogBadSlotToken struct {
	Seed  string // seed which returned listing
	Node  string // address of node the token belongs to
	Token string
}

// LogTopologyReady is logged when new topology snapshot is published.
type LogTopologyReady struct {
	Seed          string
	Servers       int
	Disagreements []string
	PubSubTarget  string
}

// LogTopologyFailed is logged when no seed could provide valid topology.
type LogTopologyFailed struct {
	Error error
}

// LogDispatch is logged for every dispatched command (on debug level by default logger).
type LogDispatch struct {
	Command string
	Slot    uint16
	Server  string
	Index   int // index among slot owners: 0 is master, >0 is replica
	Conn    Conn
}

// LogPoolExhausted is logged when there is no free connection to server.
type LogPoolExhausted struct {
	Command string
	Server  string
}

// LogContextClosed is logged when pool is closed.
type LogContextClosed struct{ Error error }

func (LogHostEvent) logEvent()      {}
func (LogSeedFailed) logEvent()     {}
func (LogBadSlotToken) logEvent()   {}
func (LogTopologyReady) logEvent()  {}
func (LogTopologyFailed) logEvent() {}
func (LogDispatch) logEvent()       {}
func (LogPoolExhausted) logEvent()  {}
func (LogContextClosed) logEvent()  {}

// ZapLogger is a default Logger implementation.
type ZapLogger struct {
	L *zap.Logger
}

// NewZapLogger returns Logger writing to l. If l is nil, zap.L() is used at the moment of logging.
func NewZapLogger(l *zap.Logger) ZapLogger {
	return ZapLogger{L: l}
}

func (d ZapLogger) logger() *zap.Logger {
	if d.L != nil {
		return d.L
	}
	return zap.L()
}

// Report implements Logger.Report.
func (d ZapLogger) Report(event LogEvent) {
	l := d.logger()
	switch ev := event.(type) {
	case LogHostEvent:
		redisconn.ZapLogger{L: l}.Report(ev.Conn, ev.Event)
	case LogSeedFailed:
		l.Warn("rediscluster: topology discovery from seed failed",
			zap.String("seed", ev.Seed), zap.Error(ev.Error))
	case LogBadSlotToken:
		l.Warn("rediscluster: unparsable slot token skipped",
			zap.String("seed", ev.Seed), zap.String("node", ev.Node), zap.String("token", ev.Token))
	case LogTopologyReady:
		l.Info("rediscluster: topology discovered",
			zap.String("seed", ev.Seed),
			zap.Int("servers", ev.Servers),
			zap.Strings("disagreements", ev.Disagreements),
			zap.String("pubsub_target", ev.PubSubTarget))
	case LogTopologyFailed:
		l.Error("rediscluster: topology discovery failed", zap.Error(ev.Error))
	case LogDispatch:
		if ce := l.Check(zap.DebugLevel, "rediscluster: dispatch"); ce != nil {
			fields := []zap.Field{
				zap.String("command", ev.Command),
				zap.Uint16("slot", ev.Slot),
				zap.String("server", ev.Server),
				zap.Int("index", ev.Index),
			}
			if c, ok := ev.Conn.(*redisconn.Connection); ok {
				fields = append(fields, zap.String("conn_id", c.ID()))
			}
			ce.Write(fields...)
		}
	case LogPoolExhausted:
		l.Warn("rediscluster: no available connections",
			zap.String("command", ev.Command), zap.String("server", ev.Server))
	case LogContextClosed:
		l.Info("rediscluster: shutting down", zap.NamedError("reason", ev.Error))
	default:
		l.Warn("rediscluster: unexpected event", zap.Any("event", event))
	}
}

// defaultConnLogger implements redisconn.Logger to log individual connection events in context of cluster.
type defaultConnLogger struct {
	l Logger
}

// Report implements redisconn.Logger.Report
func (d defaultConnLogger) Report(conn *redisconn.Connection, event redisconn.LogEvent) {
	d.l.Report(LogHostEvent{Conn: conn, Event: event})
}

// ReqStat implements redisconn.Logger.ReqStat
func (d defaultConnLogger) ReqStat(conn *redisconn.Connection, req Request, res interface{}, nanos int64) {
}

// NoopLogger implements Logger with no logging at all.
type NoopLogger struct{}

// Report implements Logger.Report
func (d NoopLogger) Report(event LogEvent) {}
