package snmp

import (
	"errors"
	"fmt"
)

// Kind identifies one node of the error taxonomy. Every kind except
// KindGeneric has exactly one parent.
type Kind int

const (
	KindGeneric Kind = iota
	KindConnection
	KindTimeout
	KindParse
	KindPacket
	KindUnknownObjectID
	KindNoSuchName
	KindNoSuchObject
	KindNoSuchInstance
	KindUndeterminedType
)

var kindNames = map[Kind]string{
	KindGeneric:          "GenericError",
	KindConnection:       "ConnectionError",
	KindTimeout:          "TimeoutError",
	KindParse:            "ParseError",
	KindPacket:           "PacketError",
	KindUnknownObjectID:  "UnknownObjectIDError",
	KindNoSuchName:       "NoSuchNameError",
	KindNoSuchObject:     "NoSuchObjectError",
	KindNoSuchInstance:   "NoSuchInstanceError",
	KindUndeterminedType: "UndeterminedTypeError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Parent returns the kind this one specializes. KindGeneric is its own parent.
func (k Kind) Parent() Kind {
	switch k {
	case KindTimeout:
		return KindConnection
	default:
		return KindGeneric
	}
}

// IsA reports whether k is other or descends from it.
func (k Kind) IsA(other Kind) bool {
	for {
		if k == other {
			return true
		}
		if k == KindGeneric {
			return false
		}
		k = k.Parent()
	}
}

// Error is a classified SNMP failure.
type Error struct {
	Kind Kind
	Msg  string
	// Err is the native signal the error was classified from, if any.
	Err error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error whose kind is e's kind or one of its ancestors, so
// errors.Is(err, ErrConnection) holds for timeouts too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind.IsA(t.Kind)
}

// Sentinels for errors.Is. Only their Kind is compared.
var (
	ErrGeneric          = &Error{Kind: KindGeneric, Msg: "snmp error"}
	ErrConnection       = &Error{Kind: KindConnection, Msg: "snmp connection error"}
	ErrTimeout          = &Error{Kind: KindTimeout, Msg: "snmp timeout"}
	ErrParse            = &Error{Kind: KindParse, Msg: "snmp parse error"}
	ErrPacket           = &Error{Kind: KindPacket, Msg: "snmp packet error"}
	ErrUnknownObjectID  = &Error{Kind: KindUnknownObjectID, Msg: "unknown object identifier"}
	ErrNoSuchName       = &Error{Kind: KindNoSuchName, Msg: "no such name"}
	ErrNoSuchObject     = &Error{Kind: KindNoSuchObject, Msg: "no such object"}
	ErrNoSuchInstance   = &Error{Kind: KindNoSuchInstance, Msg: "no such instance"}
	ErrUndeterminedType = &Error{Kind: KindUndeterminedType, Msg: "undetermined type"}
)

func parseErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindParse, Msg: fmt.Sprintf(format, args...)}
}

// NativeKind is the closed set of failure tags an Engine reports.
type NativeKind int

const (
	NativeGeneric NativeKind = iota + 1
	NativeConnection
	NativeTimeout
	NativeParse
	NativePacket
	NativeUnknownObjectID
	NativeNoSuchName
	NativeNoSuchObject
	NativeNoSuchInstance
	NativeUndeterminedType
)

// NativeError is the raw failure signal produced by an Engine.
type NativeError struct {
	Kind    NativeKind
	Message string
}

func (e *NativeError) Error() string {
	return e.Message
}

// NewNativeError builds a tagged engine failure.
func NewNativeError(kind NativeKind, format string, args ...any) *NativeError {
	return &NativeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var classification = map[NativeKind]Kind{
	NativeGeneric:          KindGeneric,
	NativeConnection:       KindConnection,
	NativeTimeout:          KindTimeout,
	NativeParse:            KindParse,
	NativePacket:           KindPacket,
	NativeUnknownObjectID:  KindUnknownObjectID,
	NativeNoSuchName:       KindNoSuchName,
	NativeNoSuchObject:     KindNoSuchObject,
	NativeNoSuchInstance:   KindNoSuchInstance,
	NativeUndeterminedType: KindUndeterminedType,
}

// Classify maps an engine failure onto the error taxonomy. Native signals
// with an unknown tag become a KindGeneric error that keeps the original
// message and still unwraps to the native signal. Context added by
// wrapping a native signal stays in the message. Errors that are not
// native signals (context cancellation, already classified errors) are
// returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var native *NativeError
	if !errors.As(err, &native) {
		return err
	}
	kind, ok := classification[native.Kind]
	if !ok {
		kind = KindGeneric
	}
	msg := native.Message
	if err != error(native) {
		msg = err.Error()
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}
