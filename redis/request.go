package redis

import (
	"strconv"
)

// Req - convenient wrapper to create Request.
func Req(cmd string, args ...interface{}) Request {
	return Request{cmd, args}
}

// Request represents request to be passed to redis.
type Request struct {
	// Cmd is a command to be sent.
	// It could contain single space, then it will be split, and last part will be serialized as an argument.
	Cmd  string
	Args []interface{}
}

func (r Request) String() string {
	args := r.Args
	if len(args) > 5 {
		args = args[:5]
	}
	str := strconv.Quote(r.Cmd)
	for _, arg := range args {
		s, _ := ArgToString(arg)
		str += " " + strconv.Quote(s)
	}
	if len(args) < len(r.Args) {
		str += " ..."
	}
	return "Req(" + str + ")"
}

// ArgToString returns string representation of an argument.
// Used to calculate request routing key and by default encoder.
// Returns false if argument type is not supported.
func ArgToString(arg interface{}) (string, bool) {
	var k string
	switch v := arg.(type) {
	case string:
		k = v
	case []byte:
		k = string(v)
	case int:
		k = strconv.FormatInt(int64(v), 10)
	case uint:
		k = strconv.FormatUint(uint64(v), 10)
	case int64:
		k = strconv.FormatInt(v, 10)
	case uint64:
		k = strconv.FormatUint(v, 10)
	case int32:
		k = strconv.FormatInt(int64(v), 10)
	case uint32:
		k = strconv.FormatUint(uint64(v), 10)
	case int16:
		k = strconv.FormatInt(int64(v), 10)
	case uint16:
		k = strconv.FormatUint(uint64(v), 10)
	case int8:
		k = strconv.FormatInt(int64(v), 10)
	case uint8:
		k = strconv.FormatUint(uint64(v), 10)
	case float64:
		k = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		k = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		if v {
			k = "1"
		} else {
			k = "0"
		}
	case nil:
		k = ""
	default:
		return "", false
	}
	return k, true
}
