package redis

import "github.com/joomcode/errorx"

var (
	// Errors is a root namespace of all errors of this module.
	Errors = errorx.NewNamespace("redis")

	// ErrOpts - options are wrong.
	ErrOpts = Errors.NewType("opts")
	// ErrContextIsNil - context is not passed to constructor.
	ErrContextIsNil = ErrOpts.NewSubtype("context_is_nil")
	// ErrNoAddressProvided - no address given to constructor.
	ErrNoAddressProvided = ErrOpts.NewSubtype("no_address")

	// ErrContextClosed - context were explicitly closed (connection or pool shut down).
	ErrContextClosed = Errors.NewType("context_closed")

	// ErrKindConnection - connection was not established at the moment request were done.
	// Request is definitely not sent anywhere.
	ErrKindConnection = Errors.NewSubNamespace("connection")
	// ErrNotConnected - connection is not established at the moment.
	ErrNotConnected = ErrKindConnection.NewType("not_connected", errorx.Temporary())
	// ErrDial - connection establishing not successful.
	ErrDial = ErrKindConnection.NewType("dial", errorx.Temporary())
	// ErrAuth - password didn't match.
	ErrAuth = ErrKindConnection.NewType("auth")
	// ErrConnSetup - other connection initializing error (PING or SELECT failed).
	ErrConnSetup = ErrKindConnection.NewType("setup")

	// ErrIO - io error: read/write error, or timeout, or connection closed while reading/writing.
	// It is not known if request were processed or not.
	ErrIO = Errors.NewType("io")

	// ErrKindRequest - request malformed. Can not serialize request, no reason to retry.
	ErrKindRequest = Errors.NewSubNamespace("request")
	// ErrArgumentType - argument is not serializable.
	ErrArgumentType = ErrKindRequest.NewType("argument_type")

	// ErrKindResponse - redis returns unexpected or malformed response.
	ErrKindResponse = Errors.NewSubNamespace("response")
	// ErrResponseFormat - response is not valid Redis response.
	ErrResponseFormat = ErrKindResponse.NewType("format")
	// ErrResponseUnexpected - response is valid redis response, but its structure/type unexpected.
	ErrResponseUnexpected = ErrKindResponse.NewType("unexpected")
	// ErrHeaderlineTooLarge - header line too large.
	ErrHeaderlineTooLarge = ErrResponseFormat.NewSubtype("headerline_too_large")
	// ErrHeaderlineEmpty - header line is empty.
	ErrHeaderlineEmpty = ErrResponseFormat.NewSubtype("headerline_empty")
	// ErrIntegerParsing - integer malformed.
	ErrIntegerParsing = ErrResponseFormat.NewSubtype("integer_parsing")
	// ErrNoFinalRN - no final "\r\n".
	ErrNoFinalRN = ErrResponseFormat.NewSubtype("no_final_rn")
	// ErrUnknownHeaderType - unknown header type.
	ErrUnknownHeaderType = ErrResponseFormat.NewSubtype("unknown_header_type")
	// ErrPing - ping receives wrong response.
	ErrPing = ErrResponseUnexpected.NewSubtype("ping")

	// ErrResult - just regular redis error response.
	ErrResult = Errors.NewType("result")
	// ErrMoved - MOVED response: slot is served by other host.
	ErrMoved = ErrResult.NewSubtype("moved")
	// ErrAsk - ASK response: slot is migrating, and key should be asked on other host.
	ErrAsk = ErrResult.NewSubtype("ask")
	// ErrLoading - host is loading its dataset.
	ErrLoading = ErrResult.NewSubtype("loading", errorx.Temporary())
	// ErrNoScript - NOSCRIPT response: host has no script with given sha1.
	ErrNoScript = ErrResult.NewSubtype("noscript")
)

var (
	// EKAddress - address of redis host.
	EKAddress = errorx.RegisterPrintableProperty("address")
	// EKCommand - command name of request.
	EKCommand = errorx.RegisterPrintableProperty("command")
	// EKSlot - slot number, extracted from MOVED or ASK response, or computed for request.
	EKSlot = errorx.RegisterPrintableProperty("slot")
	// EKMovedTo - address extracted from MOVED or ASK response.
	EKMovedTo = errorx.RegisterPrintableProperty("movedto")
	// EKLine - malformed header line.
	EKLine = errorx.RegisterProperty("line")
	// EKResponse - unexpected response.
	EKResponse = errorx.RegisterProperty("response")
	// EKArgument - argument which could not be serialized.
	EKArgument = errorx.RegisterProperty("argument")
)

// AsErrorx returns err as *errorx.Error, or nil if it is not such error.
func AsErrorx(err error) *errorx.Error {
	return errorx.Cast(err)
}

// HardError returns true if err is not a regular redis error reply.
// Hard errors mean connection state is unknown and it has to be reestablished.
func HardError(err error) bool {
	return err != nil && !errorx.IsOfType(err, ErrResult)
}
