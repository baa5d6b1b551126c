package resp

import (
	"strconv"
	"strings"

	"github.com/joomcode/redisrouter/redis"
)

// AppendRequest appends request to buffer in RESP format.
// If Cmd contains a space, it is split, and the second part is sent as a separate argument
// (ie "CLUSTER NODES" becomes two bulk strings).
// On error the original buffer is returned untouched.
func AppendRequest(buf []byte, req redis.Request) ([]byte, error) {
	orig := buf
	space := strings.IndexByte(req.Cmd, ' ')
	n := len(req.Args) + 1
	if space != -1 {
		n++
	}
	buf = appendHead(buf, '*', int64(n))
	if space == -1 {
		buf = appendBulkString(buf, req.Cmd)
	} else {
		buf = appendBulkString(buf, req.Cmd[:space])
		buf = appendBulkString(buf, req.Cmd[space+1:])
	}
	for _, val := range req.Args {
		switch v := val.(type) {
		case string:
			buf = appendBulkString(buf, v)
		case []byte:
			buf = appendHead(buf, '$', int64(len(v)))
			buf = append(buf, v...)
			buf = append(buf, '\r', '\n')
		case int:
			buf = appendBulkInt(buf, int64(v))
		case uint:
			buf = appendBulkUint(buf, uint64(v))
		case int64:
			buf = appendBulkInt(buf, v)
		case uint64:
			buf = appendBulkUint(buf, v)
		case int32:
			buf = appendBulkInt(buf, int64(v))
		case uint32:
			buf = appendBulkUint(buf, uint64(v))
		case int8:
			buf = appendBulkInt(buf, int64(v))
		case uint8:
			buf = appendBulkUint(buf, uint64(v))
		case int16:
			buf = appendBulkInt(buf, int64(v))
		case uint16:
			buf = appendBulkUint(buf, uint64(v))
		case bool:
			if v {
				buf = append(buf, "$1\r\n1\r\n"...)
			} else {
				buf = append(buf, "$1\r\n0\r\n"...)
			}
		case float32:
			buf = appendBulkString(buf, strconv.FormatFloat(float64(v), 'f', -1, 32))
		case float64:
			buf = appendBulkString(buf, strconv.FormatFloat(v, 'f', -1, 64))
		case nil:
			buf = append(buf, "$0\r\n\r\n"...)
		default:
			return orig, redis.ErrArgumentType.New("command argument type %T not supported", val).
				WithProperty(redis.EKArgument, val).
				WithProperty(redis.EKCommand, req.Cmd)
		}
	}
	return buf, nil
}

func appendHead(b []byte, t byte, i int64) []byte {
	b = append(b, t)
	b = strconv.AppendInt(b, i, 10)
	return append(b, '\r', '\n')
}

func appendBulkString(b []byte, s string) []byte {
	b = appendHead(b, '$', int64(len(s)))
	b = append(b, s...)
	return append(b, '\r', '\n')
}

func appendBulkInt(b []byte, i int64) []byte {
	var digits [24]byte
	d := strconv.AppendInt(digits[:0], i, 10)
	b = appendHead(b, '$', int64(len(d)))
	b = append(b, d...)
	return append(b, '\r', '\n')
}

func appendBulkUint(b []byte, u uint64) []byte {
	var digits [24]byte
	d := strconv.AppendUint(digits[:0], u, 10)
	b = appendHead(b, '$', int64(len(d)))
	b = append(b, d...)
	return append(b, '\r', '\n')
}
