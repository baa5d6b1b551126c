package rediscluster_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/joomcode/redisrouter/rediscluster"
)

func TestLookupCommand(t *testing.T) {
	assert.Equal(t, CommandInfo{Read: true}, LookupCommand("GET"))
	assert.Equal(t, CommandInfo{Read: true}, LookupCommand("hmget"))
	assert.Equal(t, CommandInfo{Read: true}, LookupCommand("ZRangeByScore"))
	assert.Equal(t, CommandInfo{}, LookupCommand("SET"))
	assert.Equal(t, CommandInfo{}, LookupCommand("NOSUCHCOMMAND"))
	assert.Equal(t, CommandInfo{KeyPos: 2}, LookupCommand("evalsha"))
	assert.Equal(t, CommandInfo{Read: true, KeyPos: 2}, LookupCommand("EVAL_RO"))
	assert.Equal(t, CommandInfo{KeyPos: 1}, LookupCommand("BITOP"))

	assert.True(t, IsReadCommand("xrange"))
	assert.False(t, IsReadCommand("XADD"))
	assert.False(t, IsReadCommand("INCR"))
}
