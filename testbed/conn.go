package testbed

import (
	"bufio"
	"net"
	"time"

	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/resp"
)

// Do sends single command to addr over fresh connection and returns reply.
// Errors are returned as *errorx.Error values.
func Do(addr string, cmd string, args ...interface{}) interface{} {
	conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	if err != nil {
		return redis.ErrDial.Wrap(err, "dial failed").WithProperty(redis.EKAddress, addr)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(1 * time.Second))
	req, err := resp.AppendRequest(nil, redis.Req(cmd, args...))
	if err != nil {
		return err
	}
	if _, err = conn.Write(req); err != nil {
		return redis.ErrIO.Wrap(err, "write failed")
	}
	return resp.Read(bufio.NewReader(conn))
}

// Do sends command to server over fresh connection.
func (s *Server) Do(cmd string, args ...interface{}) interface{} {
	return Do(s.Addr(), cmd, args...)
}
