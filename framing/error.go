package framing

import "github.com/opcua-go/uasc/buffer"

// ErrorBody is the payload of an ERR message: a status code and a short,
// deliberately uninformative reason string. framing carries the code as a raw
// uint32 rather than ua.StatusCode to keep this package independent of ua's
// severity-bit helpers; callers map it back with ua.StatusCode(...).
type ErrorBody struct {
	Code   uint32
	Reason string
}

// Encode serializes an ERR body.
func (e ErrorBody) Encode() ([]byte, error) {
	buf := buffer.New(4 + 4 + len(e.Reason))
	if err := buf.WriteUint32(e.Code); err != nil {
		return nil, err
	}
	reason := e.Reason
	if err := buf.WriteString(&reason); err != nil {
		return nil, err
	}
	return buf.Written(), nil
}

// DecodeErrorBody parses an ERR body, tolerating malformed input by
// reporting an empty reason rather than failing: a peer's ERR is already
// the failure path, so a second failure while parsing it should not
// obscure the original status code.
func DecodeErrorBody(data []byte) (code uint32, reason string) {
	buf := buffer.Wrap(data)
	c, err := buf.ReadUint32()
	if err != nil {
		return 0, ""
	}
	r, err := buf.ReadString()
	if err != nil || r == nil {
		return c, ""
	}
	return c, *r
}
