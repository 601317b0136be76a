package frame

import "errors"

// Decode failure codes. Use errors.Is against these.
var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrChecksumFormat   = errors.New("checksum format error")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrTooFewFields     = errors.New("too few fields")
	ErrUnknownType      = errors.New("unknown message type")
)

// DecodeError carries the offending frame alongside its failure code.
type DecodeError struct {
	Code  error
	Frame string
	Msg   string
}

func (e *DecodeError) Error() string {
	if e.Msg != "" {
		return e.Code.Error() + ": " + e.Msg
	}
	return e.Code.Error()
}

func (e *DecodeError) Unwrap() error { return e.Code }

func decodeErr(code error, raw, msg string) error {
	return &DecodeError{Code: code, Frame: raw, Msg: msg}
}
