// Package testbed provides in-process fake redis servers and fake clusters for tests.
//
// Fake servers are not a redis replacement: they keep data in a map, understand only
// commands needed to exercise connection handshake and cluster routing, and record every
// command they receive, so tests could check where a request was sent.
package testbed

import "strconv"

// MovedTo returns Handler which replies with MOVED redirection to every command accessing data.
func MovedTo(slot int, addr string) Handler {
	return func(s *Server, cmd string, args []string) (interface{}, bool) {
		switch cmd {
		case "GET", "SET", "DEL":
			return Error("MOVED " + strconv.Itoa(slot) + " " + addr), true
		}
		return nil, false
	}
}

// AskTo returns Handler which replies with ASK redirection to every command accessing data.
func AskTo(slot int, addr string) Handler {
	return func(s *Server, cmd string, args []string) (interface{}, bool) {
		switch cmd {
		case "GET", "SET", "DEL":
			return Error("ASK " + strconv.Itoa(slot) + " " + addr), true
		}
		return nil, false
	}
}
