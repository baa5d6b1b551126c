package resp_test

import (
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"

	"github.com/joomcode/redisrouter/redis"
	. "github.com/joomcode/redisrouter/resp"
)

func TestAppendRequestArgument(t *testing.T) {
	cases := []struct {
		arg  interface{}
		want string
	}{
		{int(0), "$1\r\n0\r\n"},
		{uint(1), "$1\r\n1\r\n"},
		{int8(-31), "$3\r\n-31\r\n"},
		{uint8(156), "$3\r\n156\r\n"},
		{int16(-3906), "$5\r\n-3906\r\n"},
		{uint16(19351), "$5\r\n19351\r\n"},
		{int32(-488281), "$7\r\n-488281\r\n"},
		{uint32(2441406), "$7\r\n2441406\r\n"},
		{int64(-61035156), "$9\r\n-61035156\r\n"},
		{uint64(305175781), "$9\r\n305175781\r\n"},
		{int64(9223372036854775807), "$19\r\n9223372036854775807\r\n"},
		{int64(-9223372036854775808), "$20\r\n-9223372036854775808\r\n"},
		{uint64(18446744073709551615), "$20\r\n18446744073709551615\r\n"},
		{float32(0.25), "$4\r\n0.25\r\n"},
		{float32(-10000.25), "$9\r\n-10000.25\r\n"},
		{float64(0.0), "$1\r\n0\r\n"},
		{float64(-10000.25), "$9\r\n-10000.25\r\n"},
		{true, "$1\r\n1\r\n"},
		{false, "$1\r\n0\r\n"},
		{nil, "$0\r\n\r\n"},
		{"asdf", "$4\r\nasdf\r\n"},
		{[]byte("asdf"), "$4\r\nasdf\r\n"},
	}
	for _, c := range cases {
		k, err := AppendRequest(nil, redis.Req("CMD", c.arg))
		assert.NoError(t, err)
		assert.Equal(t, "*2\r\n$3\r\nCMD\r\n"+c.want, string(k), "%T(%v)", c.arg, c.arg)
	}

	k, err := AppendRequest(nil, redis.Req("CMD", make(chan int)))
	assert.Nil(t, k)
	assert.True(t, errorx.IsOfType(err, redis.ErrArgumentType))
}

func TestAppendRequestSplitsCommand(t *testing.T) {
	k, err := AppendRequest(nil, redis.Req("CLUSTER NODES"))
	assert.NoError(t, err)
	assert.Equal(t, "*2\r\n$7\r\nCLUSTER\r\n$5\r\nNODES\r\n", string(k))

	k, err = AppendRequest([]byte("+"), redis.Req("GET", "foo"))
	assert.NoError(t, err)
	assert.Equal(t, "+*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", string(k))

	k, err = AppendRequest([]byte("+"), redis.Req("SET", "foo", struct{}{}))
	assert.Error(t, err)
	assert.Equal(t, "+", string(k))

	k, err = AppendRequest(make([]byte, 0, 4), redis.Req("SET", "foo", []string{"bar"}))
	assert.Error(t, err)
	assert.NotNil(t, k)
	assert.Empty(t, k)
}
