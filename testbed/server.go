package testbed

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/joomcode/redisrouter/resp"
)

// Error is a reply which is sent to client as RESP error ("-" prefixed line).
type Error string

// Status is a reply which is sent to client as simple string ("+" prefixed line).
type Status string

// Handler may intercept command before default processing.
// If handled is false, command is processed by Server as usual.
type Handler func(s *Server, cmd string, args []string) (reply interface{}, handled bool)

// Server is an in-process fake redis server.
// It speaks RESP and knows a handful of commands enough to test clients:
// PING, ECHO, AUTH, SELECT, READONLY, CLUSTER NODES, GET, SET and DEL.
type Server struct {
	mu        sync.Mutex
	password  string
	port      int
	ln        net.Listener
	conns     map[net.Conn]struct{}
	handler   Handler
	nodes     string
	data      map[string]string
	commands  []string
	readonly  int
	connCount int
	wg        sync.WaitGroup
}

// NewServer creates server which is not started yet.
func NewServer() *Server {
	return &Server{
		conns: make(map[net.Conn]struct{}),
		data:  make(map[string]string),
	}
}

// Start starts listening on 127.0.0.1.
// Port is chosen randomly on first start and preserved for following restarts.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(s.port))
	if err != nil {
		return err
	}
	s.ln = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.wg.Add(1)
	go s.serve(ln)
	return nil
}

// Stop closes listener and all accepted connections.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
}

// DropConnections closes all accepted connections, but keeps listening.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// Port returns listening port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr returns address in host:port form.
func (s *Server) Addr() string {
	return "127.0.0.1:" + strconv.Itoa(s.Port())
}

// SetPassword sets password. If not empty, AUTH is required before any other command.
// It affects only connections accepted afterwards.
func (s *Server) SetPassword(password string) {
	s.mu.Lock()
	s.password = password
	s.mu.Unlock()
}

// SetHandler sets command interceptor.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// SetClusterNodes sets text returned by CLUSTER NODES.
// Empty text means cluster support is disabled.
func (s *Server) SetClusterNodes(text string) {
	s.mu.Lock()
	s.nodes = text
	s.mu.Unlock()
}

// Commands returns log of commands (with arguments) processed by server.
// Handshake commands (AUTH, SELECT, PING) are included.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// CommandCount returns number of logged commands with given name.
func (s *Server) CommandCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.commands {
		if c == name || strings.HasPrefix(c, name+" ") {
			n++
		}
	}
	return n
}

// ReadOnlyCount returns number of READONLY commands received.
func (s *Server) ReadOnlyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readonly
}

// ConnCount returns number of connections accepted since creation.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connCount
}

// Get returns value stored in db 0.
func (s *Server) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data["0:"+key]
	return v, ok
}

func (s *Server) serve(ln net.Listener) {
	defer s.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.ln != ln {
			s.mu.Unlock()
			c.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.connCount++
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(c)
	}
}

type session struct {
	password string
	authed   bool
	db       int
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	s.mu.Lock()
	sess := &session{password: s.password, authed: s.password == ""}
	s.mu.Unlock()
	for {
		req, ok := resp.Read(r).([]interface{})
		if !ok || len(req) == 0 {
			return
		}
		parts := make([]string, len(req))
		for i, p := range req {
			b, ok := p.([]byte)
			if !ok {
				return
			}
			parts[i] = string(b)
		}
		reply := s.exec(sess, strings.ToUpper(parts[0]), parts[1:])
		writeReply(w, reply)
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) exec(sess *session, cmd string, args []string) interface{} {
	if cmd == "CLUSTER" && len(args) > 0 {
		cmd += " " + strings.ToUpper(args[0])
		args = args[1:]
	}

	s.mu.Lock()
	s.commands = append(s.commands, strings.TrimSpace(cmd+" "+strings.Join(args, " ")))
	handler := s.handler
	s.mu.Unlock()

	if cmd == "AUTH" {
		return s.auth(sess, args)
	}
	if !sess.authed {
		return Error("NOAUTH Authentication required.")
	}
	if handler != nil {
		if reply, handled := handler(s, cmd, args); handled {
			return reply
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case "PING":
		if len(args) > 0 {
			return []byte(args[0])
		}
		return Status("PONG")
	case "ECHO":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		return []byte(args[0])
	case "SELECT":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		db, err := strconv.Atoi(args[0])
		if err != nil || db < 0 || db > 15 {
			return Error("ERR DB index is out of range")
		}
		sess.db = db
		return Status("OK")
	case "READONLY":
		s.readonly++
		return Status("OK")
	case "CLUSTER NODES":
		if s.nodes == "" {
			return Error("ERR This instance has cluster support disabled")
		}
		return []byte(s.nodes)
	case "GET":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		v, ok := s.data[s.key(sess, args[0])]
		if !ok {
			return nil
		}
		return []byte(v)
	case "SET":
		if len(args) < 2 {
			return wrongArgs(cmd)
		}
		s.data[s.key(sess, args[0])] = args[1]
		return Status("OK")
	case "DEL":
		if len(args) == 0 {
			return wrongArgs(cmd)
		}
		n := int64(0)
		for _, k := range args {
			if _, ok := s.data[s.key(sess, k)]; ok {
				delete(s.data, s.key(sess, k))
				n++
			}
		}
		return n
	}
	return Error("ERR unknown command '" + strings.ToLower(cmd) + "'")
}

func (s *Server) auth(sess *session, args []string) interface{} {
	if len(args) != 1 {
		return wrongArgs("AUTH")
	}
	if sess.password == "" {
		return Error("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}
	if args[0] != sess.password {
		return Error("WRONGPASS invalid username-password pair or user is disabled.")
	}
	sess.authed = true
	return Status("OK")
}

func (s *Server) key(sess *session, k string) string {
	return strconv.Itoa(sess.db) + ":" + k
}

func wrongArgs(cmd string) Error {
	return Error("ERR wrong number of arguments for '" + strings.ToLower(cmd) + "' command")
}

func writeReply(w *bufio.Writer, reply interface{}) {
	switch v := reply.(type) {
	case nil:
		w.WriteString("$-1\r\n")
	case Status:
		w.WriteString("+" + string(v) + "\r\n")
	case Error:
		w.WriteString("-" + string(v) + "\r\n")
	case string:
		writeReply(w, []byte(v))
	case []byte:
		w.WriteString("$" + strconv.Itoa(len(v)) + "\r\n")
		w.Write(v)
		w.WriteString("\r\n")
	case int:
		w.WriteString(":" + strconv.Itoa(v) + "\r\n")
	case int64:
		w.WriteString(":" + strconv.FormatInt(v, 10) + "\r\n")
	case []interface{}:
		w.WriteString("*" + strconv.Itoa(len(v)) + "\r\n")
		for _, el := range v {
			writeReply(w, el)
		}
	default:
		w.WriteString("-ERR testbed can't serialize reply\r\n")
	}
}
