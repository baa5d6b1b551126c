package redis

// Encoder converts native values into redis bulk strings and bulk strings back into native values.
// Only command arguments and bulk string replies pass through Encoder; integers, statuses and
// errors are returned as is.
type Encoder interface {
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte) (interface{}, error)
}

// BytesEncoder is a default Encoder: arguments are serialized with ArgToString,
// bulk strings are returned as []byte.
type BytesEncoder struct{}

// Encode implements Encoder.Encode
func (BytesEncoder) Encode(v interface{}) ([]byte, error) {
	return encodeArg(v)
}

// Decode implements Encoder.Decode
func (BytesEncoder) Decode(b []byte) (interface{}, error) {
	return b, nil
}

// StringEncoder serializes arguments same way as BytesEncoder, but returns bulk strings as string.
type StringEncoder struct{}

// Encode implements Encoder.Encode
func (StringEncoder) Encode(v interface{}) ([]byte, error) {
	return encodeArg(v)
}

// Decode implements Encoder.Decode
func (StringEncoder) Decode(b []byte) (interface{}, error) {
	return string(b), nil
}

func encodeArg(v interface{}) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	s, ok := ArgToString(v)
	if !ok {
		return nil, ErrArgumentType.New("command argument type %T not supported", v).
			WithProperty(EKArgument, v)
	}
	return []byte(s), nil
}

// EncodeArgs passes all arguments through encoder.
// Result contains only []byte values.
func EncodeArgs(enc Encoder, args []interface{}) ([]interface{}, error) {
	if enc == nil {
		return args, nil
	}
	res := make([]interface{}, len(args))
	for i, arg := range args {
		b, err := enc.Encode(arg)
		if err != nil {
			return nil, err
		}
		res[i] = b
	}
	return res, nil
}

// DecodeReply passes every bulk string of reply (including nested into arrays) through encoder.
// Error replies nested into arrays are left untouched.
func DecodeReply(enc Encoder, res interface{}) (interface{}, error) {
	if enc == nil {
		return res, nil
	}
	switch v := res.(type) {
	case []byte:
		return enc.Decode(v)
	case []interface{}:
		for i := range v {
			d, err := DecodeReply(enc, v[i])
			if err != nil {
				return nil, err
			}
			v[i] = d
		}
		return v, nil
	default:
		return res, nil
	}
}
