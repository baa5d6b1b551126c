package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joomcode/redisrouter/rediscluster"
	"github.com/joomcode/redisrouter/testbed"
)

func run(t *testing.T, cl *testbed.Cluster, args ...string) (string, error) {
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--seeds", strings.Join(cl.Seeds(), ","), "--log-level", "error"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestDo(t *testing.T) {
	cl, err := testbed.NewCluster(3, 1)
	require.NoError(t, err)
	defer cl.Stop()

	out, err := run(t, cl, "do", "SET", "foo", "bar")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	out, err = run(t, cl, "do", "GET", "nokey")
	require.NoError(t, err)
	assert.Equal(t, "(nil)\n", out)

	_, err = run(t, cl, "do", "PING")
	assert.True(t, errorx.IsOfType(err, rediscluster.ErrNoSlotKey))
}

func TestDoFollowsRedirectAfterReset(t *testing.T) {
	cl, err := testbed.NewCluster(3, 1)
	require.NoError(t, err)
	defer cl.Stop()

	slot := int(rediscluster.Slot("foo"))
	var owner *testbed.Node
	for _, n := range cl.Node {
		for _, r := range n.Slots {
			if slot >= r[0] && slot <= r[1] {
				owner = n
			}
		}
	}
	require.NotNil(t, owner)
	owner.SetHandler(testbed.MovedTo(slot, cl.Node[0].Addr()))

	_, err = run(t, cl, "do", "SET", "foo", "bar")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, rediscluster.ErrRedirected))
	// command were sent twice: before and after rediscovery
	assert.Equal(t, 2, owner.CommandCount("SET"))
}

func TestSlotsAndServers(t *testing.T) {
	cl, err := testbed.NewCluster(2, 1)
	require.NoError(t, err)
	defer cl.Stop()

	out, err := run(t, cl, "slots")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "0-8191 "+cl.Node[0].Addr()+"(master) "+cl.Node[2].Addr()+"(replica)"))
	assert.True(t, strings.HasPrefix(lines[1], "8192-16383 "+cl.Node[1].Addr()+"(master)"))
	assert.True(t, strings.HasPrefix(lines[2], "pubsub target: "))

	out, err = run(t, cl, "servers", "--pool-size", "2")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "CONNECTED")
	for _, n := range cl.Node {
		assert.Contains(t, out, n.Addr())
	}
}

func TestBadConfig(t *testing.T) {
	cl, err := testbed.NewCluster(1, 1)
	require.NoError(t, err)
	defer cl.Stop()

	_, err = run(t, cl, "slots", "--seed-policy", "random")
	assert.True(t, errorx.IsOfType(err, ErrBadConfig))

	_, err = run(t, cl, "slots", "--pool-size", "0")
	assert.True(t, errorx.IsOfType(err, ErrBadConfig))
}

func TestWriteReply(t *testing.T) {
	var b bytes.Buffer
	writeReply(&b, []interface{}{"a", int64(1), nil, []interface{}{"x", "y"}, []interface{}{}}, "")
	assert.Equal(t, `1) a
2) (integer) 1
3) (nil)
4) 1) x
   2) y
5) (empty array)
`, b.String())
}

func TestServeTopology(t *testing.T) {
	rec := httptest.NewRecorder()
	serveTopology(rec, nil)
	assert.Equal(t, 503, rec.Code)
}
