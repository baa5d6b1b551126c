// Package resp implements serialization of requests and parsing of replies of redis protocol.
package resp

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/joomcode/errorx"

	"github.com/joomcode/redisrouter/redis"
)

// Read reads single RESP answer from bufio.Reader.
// Both redis error replies and io/format errors are returned as *errorx.Error value.
// Redis error replies are of redis.ErrResult type (or its subtypes redis.ErrMoved, redis.ErrAsk
// and redis.ErrLoading), and other errors mean the connection is in an unknown state.
func Read(b *bufio.Reader) interface{} {
	line, isPrefix, err := b.ReadLine()
	if err != nil {
		return redis.ErrIO.Wrap(err, "read failed")
	}

	if isPrefix {
		return redis.ErrHeaderlineTooLarge.NewWithNoMessage().WithProperty(redis.EKLine, line)
	}

	if len(line) == 0 {
		return redis.ErrHeaderlineEmpty.NewWithNoMessage()
	}

	var v int64
	switch line[0] {
	case '+':
		return string(line[1:])
	case '-':
		// detect MOVED and ASK
		txt := string(line[1:])
		moved := strings.HasPrefix(txt, "MOVED ")
		ask := strings.HasPrefix(txt, "ASK ")
		if moved || ask {
			parts := bytes.Split(line, []byte(" "))
			if len(parts) < 3 {
				return redis.ErrResponseFormat.New("malformed redirection").WithProperty(redis.EKLine, txt)
			}
			slot, err := parseInt(parts[1])
			if err != nil {
				return redis.ErrResponseFormat.New("malformed redirection").WithProperty(redis.EKLine, txt)
			}
			typ := redis.ErrAsk
			if moved {
				typ = redis.ErrMoved
			}
			return typ.New(txt).
				WithProperty(redis.EKMovedTo, string(parts[2])).
				WithProperty(redis.EKSlot, slot)
		}
		if strings.HasPrefix(txt, "LOADING") {
			return redis.ErrLoading.New(txt)
		}
		if strings.HasPrefix(txt, "NOSCRIPT") {
			return redis.ErrNoScript.New(txt)
		}
		return redis.ErrResult.New(txt)
	case ':':
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		return v
	case '$':
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return nil
		}
		buf := make([]byte, v+2)
		if _, err = io.ReadFull(b, buf); err != nil {
			return redis.ErrIO.Wrap(err, "read failed")
		}
		if buf[v] != '\r' || buf[v+1] != '\n' {
			return redis.ErrNoFinalRN.NewWithNoMessage()
		}
		return buf[:v:v]
	case '*':
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return nil
		}
		result := make([]interface{}, v)
		for i := int64(0); i < v; i++ {
			result[i] = Read(b)
			if e, ok := result[i].(*errorx.Error); ok && !e.IsOfType(redis.ErrResult) {
				return e
			}
		}
		return result
	default:
		return redis.ErrUnknownHeaderType.NewWithNoMessage().WithProperty(redis.EKLine, line)
	}
}

func parseInt(buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, redis.ErrIntegerParsing.NewWithNoMessage()
	}

	neg := buf[0] == '-'
	if neg {
		buf = buf[1:]
		if len(buf) == 0 {
			return 0, redis.ErrIntegerParsing.NewWithNoMessage()
		}
	}
	v := int64(0)
	for _, b := range buf {
		if b < '0' || b > '9' {
			return 0, redis.ErrIntegerParsing.NewWithNoMessage().WithProperty(redis.EKLine, buf)
		}
		v *= 10
		v -= int64(b - '0')
	}
	if !neg {
		v = -v
	}
	return v, nil
}
