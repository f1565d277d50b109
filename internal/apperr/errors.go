// Package apperr defines the single error type surfaced by a backup run.
package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind classifies a failure
type Kind string

const (
	KindTransport       Kind = "transport"
	KindAuth            Kind = "auth"
	KindJobStart        Kind = "job_start"
	KindMalformedStatus Kind = "malformed_status"
	KindJobFailed       Kind = "job_failed"
	KindTimeout         Kind = "timeout"
	KindDownload        Kind = "download"
	KindUpload          Kind = "upload"
	KindConfig          Kind = "config"
	KindStorage         Kind = "storage"
	KindCanceled        Kind = "canceled"
)

// Exit codes returned by the CLI
const (
	ExitCodeSuccess  = 0
	ExitCodeGeneric  = 1
	ExitCodeConfig   = 2
	ExitCodeAuth     = 3
	ExitCodeTimeout  = 4
	ExitCodeCanceled = 130
)

// maxBodyBytes bounds how much of an error response is kept
const maxBodyBytes = 4096

// Error is a classified failure with the vendor response attached when there is one
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	var msg strings.Builder

	msg.WriteString(string(e.Kind))
	if e.Op != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&msg, ": HTTP %d", e.StatusCode)
	}
	if len(e.Body) > 0 {
		body := string(e.Body)
		if r := []rune(body); len(r) > 200 {
			body = string(r[:200]) + "..."
		}
		msg.WriteString(": ")
		msg.WriteString(strings.TrimSpace(body))
	}
	if e.Err != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Err.Error())
	}

	return msg.String()
}

// Unwrap allows errors.Is and errors.As on the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an Error with a formatted cause
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// FromResponse builds an Error from a non-2xx response. 401 and 403 are
// reported as KindAuth whatever the requested kind. The body is read and
// kept, the caller still owns closing it.
func FromResponse(kind Kind, op string, resp *http.Response) *Error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = KindAuth
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	return &Error{
		Kind:       kind,
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

// KindOf returns the kind of the first Error in the chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps an error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	switch KindOf(err) {
	case KindConfig:
		return ExitCodeConfig
	case KindAuth:
		return ExitCodeAuth
	case KindTimeout:
		return ExitCodeTimeout
	case KindCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeGeneric
	}
}
