package redis_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/joomcode/redisrouter/redis"
)

func TestRequestString(t *testing.T) {
	assert.Equal(t, `Req("GET" "a")`, Req("GET", "a").String())
	assert.Equal(t, `Req("CLUSTER NODES")`, Req("CLUSTER NODES").String())
	assert.Equal(t, `Req("MSET" "1" "2" "3" "4" "5" ...)`, Req("MSET", 1, 2, 3, 4, 5, 6).String())
}

func TestArgToString(t *testing.T) {
	cases := []struct {
		arg  interface{}
		want string
	}{
		{int(0), "0"},
		{uint(1), "1"},
		{int8(-31), "-31"},
		{uint8(156), "156"},
		{int16(-3906), "-3906"},
		{uint16(19351), "19351"},
		{int32(-488281), "-488281"},
		{uint32(2441406), "2441406"},
		{int64(math.MaxInt64), "9223372036854775807"},
		{int64(math.MinInt64), "-9223372036854775808"},
		{uint64(math.MaxUint64), "18446744073709551615"},
		{float32(0.25), "0.25"},
		{float64(-10000.25), "-10000.25"},
		{true, "1"},
		{false, "0"},
		{nil, ""},
		{"foo", "foo"},
		{[]byte("foo"), "foo"},
	}
	for _, c := range cases {
		k, ok := ArgToString(c.arg)
		assert.True(t, ok, "%T", c.arg)
		assert.Equal(t, c.want, k, "%T", c.arg)
	}

	// routing key of unsupported type could not be calculated
	for _, arg := range []interface{}{make(chan int), struct{}{}, []string{"a"}} {
		k, ok := ArgToString(arg)
		assert.False(t, ok, "%T", arg)
		assert.Empty(t, k)
	}
}
