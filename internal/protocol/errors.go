package protocol

import (
	"errors"
	"fmt"
)

// Decoding failure kinds, matched with errors.Is.
var (
	ErrUnknownAction    = errors.New("protocol: unknown action")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

// DecodeError reports a payload that could not be turned into a Packet.
type DecodeError struct {
	Action Action
	Kind   error // ErrUnknownAction or ErrMalformedPayload
	Err    error // underlying parse error, may be nil
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v (%s): %v", e.Kind, e.Action, e.Err)
	}
	return fmt.Sprintf("%v (%s)", e.Kind, e.Action)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func malformed(a Action, err error) error {
	return &DecodeError{Action: a, Kind: ErrMalformedPayload, Err: err}
}
