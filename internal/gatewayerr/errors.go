// Package gatewayerr defines the typed error kinds the orchestrator and
// pool manager branch on, per the gateway's error-handling design.
package gatewayerr

import (
	goerrors "errors"
	"fmt"
)

// Kind classifies a gateway error so callers can branch without string
// matching.
type Kind string

const (
	KindTransient    Kind = "transient"
	KindAuthExpired  Kind = "auth_expired"
	KindProtocol     Kind = "protocol"
	KindConversion   Kind = "conversion"
	KindPoolExhausted Kind = "pool_exhausted"
	KindConfig       Kind = "config"
)

// Error is the single concrete error type carried through the gateway.
// StatusCode is the upstream HTTP status when one is known, or 0.
type Error struct {
	Kind       Kind
	StatusCode int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on Kind alone, so callers can write
// errors.Is(err, &gatewayerr.Error{Kind: gatewayerr.KindTransient}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func Transient(statusCode int, msg string, err error) *Error {
	return &Error{Kind: KindTransient, StatusCode: statusCode, Msg: msg, Err: err}
}

func AuthExpired(msg string, err error) *Error {
	return &Error{Kind: KindAuthExpired, StatusCode: 401, Msg: msg, Err: err}
}

func Protocol(msg string, err error) *Error {
	return &Error{Kind: KindProtocol, Msg: msg, Err: err}
}

func Conversion(msg string, err error) *Error {
	return &Error{Kind: KindConversion, Msg: msg, Err: err}
}

func PoolExhausted(msg string) *Error {
	return &Error{Kind: KindPoolExhausted, StatusCode: 503, Msg: msg}
}

func Config(msg string, err error) *Error {
	return &Error{Kind: KindConfig, Msg: msg, Err: err}
}

// KindOf returns the error's Kind if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !goerrors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

func IsPoolExhausted(err error) bool { return kindIs(err, KindPoolExhausted) }
func IsProtocol(err error) bool      { return kindIs(err, KindProtocol) }
func IsConversion(err error) bool    { return kindIs(err, KindConversion) }
func IsAuthExpired(err error) bool   { return kindIs(err, KindAuthExpired) }
func IsTransient(err error) bool     { return kindIs(err, KindTransient) }
func IsConfig(err error) bool        { return kindIs(err, KindConfig) }

func kindIs(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
