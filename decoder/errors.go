package decoder

import (
	"errors"
	"fmt"
)

type ErrorKind uint8

const (
	ErrAmount ErrorKind = iota + 1
	ErrTokenID
	ErrTokenType
	ErrMissingParam
	ErrAddress
	ErrUnknownMethod
	ErrUnderlying
)

func (k ErrorKind) String() string {
	switch k {
	case ErrAmount:
		return "amount"
	case ErrTokenID:
		return "token id"
	case ErrTokenType:
		return "token type"
	case ErrMissingParam:
		return "missing param"
	case ErrAddress:
		return "address"
	case ErrUnknownMethod:
		return "unknown method"
	case ErrUnderlying:
		return "codec"
	}
	return "unknown"
}

// DecodeError describes why a raw bridge item could not become an event.
// Index is the positional parameter at fault, -1 when not applicable.
type DecodeError struct {
	Kind   ErrorKind
	Method string
	Index  int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Index >= 0 {
		if e.Err != nil {
			return fmt.Sprintf("decode %s: %s at param %d: %v", e.Method, e.Kind, e.Index, e.Err)
		}
		return fmt.Sprintf("decode %s: %s at param %d", e.Method, e.Kind, e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Method, e.Kind, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Method, e.Kind)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MissingParam reports whether err is a missing positional field at index.
func MissingParam(err error, index int) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == ErrMissingParam && de.Index == index
}
