package redisconn

import (
	"io"
	"net"
	"time"
)

// timedConn moves read (write) deadline forward before every read (write).
type timedConn struct {
	net.Conn
	timeout time.Duration
}

// withIOTimeout returns c itself if timeout is disabled.
func withIOTimeout(c net.Conn, timeout time.Duration) io.ReadWriter {
	if timeout <= 0 {
		return c
	}
	return timedConn{Conn: c, timeout: timeout}
}

func (t timedConn) Read(b []byte) (int, error) {
	if err := t.Conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.Conn.Read(b)
}

func (t timedConn) Write(b []byte) (int, error) {
	if err := t.Conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.Conn.Write(b)
}
