package resp_test

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"

	"github.com/joomcode/redisrouter/redis"
	. "github.com/joomcode/redisrouter/resp"
)

func lines2bufio(lines ...string) *bufio.Reader {
	buf := []byte(strings.Join(lines, ""))
	return bufio.NewReader(bytes.NewReader(buf))
}

func readLines(lines ...string) interface{} {
	return Read(lines2bufio(lines...))
}

func checkErr(t *testing.T, res interface{}, typ *errorx.Type) bool {
	if assert.IsType(t, (*errorx.Error)(nil), res) {
		err := res.(*errorx.Error)
		return assert.True(t, err.IsOfType(typ), "expected %s, got %s", typ, err.Type())
	}
	return false
}

func TestRead_IOAndFormatErrors(t *testing.T) {
	var res interface{}

	res = readLines("")
	checkErr(t, res, redis.ErrIO)

	res = readLines("\n")
	checkErr(t, res, redis.ErrHeaderlineEmpty)

	res = readLines("\r\n")
	checkErr(t, res, redis.ErrHeaderlineEmpty)

	res = readLines("$\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("/\r\n")
	checkErr(t, res, redis.ErrUnknownHeaderType)

	res = readLines("+" + strings.Repeat("A", 1024*1024) + "\r\n")
	checkErr(t, res, redis.ErrHeaderlineTooLarge)

	res = readLines(":\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines(":-\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines(":1.1\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines(":a\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("$a\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("*a\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("$0\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("$1\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("$1\r\na")
	checkErr(t, res, redis.ErrIO)

	res = readLines("$1\r\nabc")
	checkErr(t, res, redis.ErrNoFinalRN)

	res = readLines("*1\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("*1\r\n$1\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("*1\r\n$1\r\nabc")
	checkErr(t, res, redis.ErrNoFinalRN)

	res = readLines("-MOVED 1234\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("-MOVED asdf 1.1.1.1:3456\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("-ASK 1234\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("-ASK asdf 1.1.1.1:3456\r\n")
	checkErr(t, res, redis.ErrResponseFormat)
}

func TestRead_Correct(t *testing.T) {
	var res interface{}

	res = readLines("+\r\n")
	assert.Equal(t, "", res)

	res = readLines("+asdf\r\n")
	assert.Equal(t, "asdf", res)

	res = readLines("-\r\n")
	if checkErr(t, res, redis.ErrResult) {
		assert.Equal(t, "", res.(*errorx.Error).Message())
	}

	res = readLines("-asdf\r\n")
	if checkErr(t, res, redis.ErrResult) {
		assert.Equal(t, "asdf", res.(*errorx.Error).Message())
		assert.False(t, redis.HardError(res.(error)))
	}

	res = readLines("-MOVED 1234 1.1.1.1:3456\r\n")
	if checkErr(t, res, redis.ErrMoved) {
		err := res.(*errorx.Error)
		assert.Equal(t, "MOVED 1234 1.1.1.1:3456", err.Message())
		movedTo, _ := err.Property(redis.EKMovedTo)
		assert.Equal(t, "1.1.1.1:3456", movedTo)
		slot, _ := err.Property(redis.EKSlot)
		assert.Equal(t, int64(1234), slot)
	}

	res = readLines("-ASK 1234 1.1.1.1:3456\r\n")
	if checkErr(t, res, redis.ErrAsk) {
		err := res.(*errorx.Error)
		assert.Equal(t, "ASK 1234 1.1.1.1:3456", err.Message())
		movedTo, _ := err.Property(redis.EKMovedTo)
		assert.Equal(t, "1.1.1.1:3456", movedTo)
	}

	res = readLines("-LOADING\r\n")
	if checkErr(t, res, redis.ErrLoading) {
		assert.True(t, errorx.IsTemporary(res.(error)))
	}

	res = readLines("-NOSCRIPT No matching script. Please use EVAL.\r\n")
	if checkErr(t, res, redis.ErrNoScript) {
		assert.False(t, redis.HardError(res.(error)))
	}

	for i := -1000; i <= 1000; i++ {
		res = readLines(fmt.Sprintf(":%d\r\n", i))
		assert.Equal(t, int64(i), res)
	}

	res = readLines(":9223372036854775807\r\n")
	assert.Equal(t, int64(9223372036854775807), res)

	res = readLines(":-9223372036854775808\r\n")
	assert.Equal(t, int64(-9223372036854775808), res)

	res = readLines("$0\r\n", "\r\n")
	assert.Equal(t, []byte(""), res)
	assert.Equal(t, len(res.([]byte)), cap(res.([]byte)))

	res = readLines("$4\r\n", "asdf\r\n")
	assert.Equal(t, []byte("asdf"), res)
	assert.Equal(t, len(res.([]byte)), cap(res.([]byte)))

	big := strings.Repeat("a", 1024*1024)
	res = readLines(fmt.Sprintf("$%d\r\n", len(big)), big, "\r\n")
	assert.Equal(t, []byte(big), res)

	res = readLines("*0\r\n")
	assert.Equal(t, []interface{}{}, res)

	res = readLines("*2\r\n", "+OK\r\n", "*2\r\n", ":1\r\n", "+OK\r\n")
	assert.Equal(t, []interface{}{"OK", []interface{}{int64(1), "OK"}}, res)

	res = readLines("*2\r\n", "-ERR a\r\n", "+OK\r\n")
	if assert.IsType(t, []interface{}{}, res) {
		arr := res.([]interface{})
		checkErr(t, arr[0], redis.ErrResult)
		assert.Equal(t, "OK", arr[1])
	}

	res = readLines("$-1\r\n")
	assert.Nil(t, res)

	res = readLines("*-1\r\n")
	assert.Nil(t, res)
}
