package rediscluster

import (
	"strings"

	"github.com/joomcode/redisrouter/redis"
)

// CommandInfo describes how command is routed.
type CommandInfo struct {
	// Read is true for commands which could be served by replica.
	Read bool
	// KeyPos is a position of routing key among command's arguments.
	KeyPos int
}

var readCommands = []string{
	"GET", "HGET", "HMGET",
	"GETRANGE", "STRLEN", "EXISTS", "TTL", "PTTL", "TYPE",
	"HGETALL", "HKEYS", "HVALS", "HLEN", "HEXISTS", "HSTRLEN",
	"LRANGE", "LLEN", "LINDEX",
	"SMEMBERS", "SISMEMBER", "SCARD", "SRANDMEMBER",
	"ZRANGE", "ZRANGEBYSCORE", "ZREVRANGE", "ZSCORE", "ZCARD", "ZCOUNT", "ZRANK", "ZREVRANK",
	"BITCOUNT", "GETBIT", "DUMP", "PFCOUNT", "XRANGE", "XLEN",
}

var commands = func() map[string]CommandInfo {
	m := make(map[string]CommandInfo, len(readCommands)+8)
	for _, cmd := range readCommands {
		m[cmd] = CommandInfo{Read: true}
	}
	// script and numkeys go before keys
	m["EVAL"] = CommandInfo{KeyPos: 2}
	m["EVALSHA"] = CommandInfo{KeyPos: 2}
	m["EVAL_RO"] = CommandInfo{Read: true, KeyPos: 2}
	m["EVALSHA_RO"] = CommandInfo{Read: true, KeyPos: 2}
	// operation goes before destination key
	m["BITOP"] = CommandInfo{KeyPos: 1}
	return m
}()

// LookupCommand returns routing information for a command.
// Lookup is case-insensitive. Unknown commands are writes with key at first argument.
func LookupCommand(cmd string) CommandInfo {
	if info, ok := commands[cmd]; ok {
		return info
	}
	if info, ok := commands[strings.ToUpper(cmd)]; ok {
		return info
	}
	return CommandInfo{}
}

// IsReadCommand returns true if command could be served by replica.
func IsReadCommand(cmd string) bool {
	return LookupCommand(cmd).Read
}

// routingKey returns key request should be routed by.
func routingKey(req Request) (string, CommandInfo, bool) {
	info := LookupCommand(req.Cmd)
	if info.KeyPos >= len(req.Args) {
		return "", info, false
	}
	key, ok := redis.ArgToString(req.Args[info.KeyPos])
	return key, info, ok
}
