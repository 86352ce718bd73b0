// Package relayerr defines the error taxonomy from SPEC_FULL.md §7.
// Errors are wrapped with fmt.Errorf("%w", ...) so callers can match them
// with errors.Is against the sentinels below; there is no panic/recover
// control flow on any data path.
package relayerr

import "errors"

var (
	// ErrConfig marks a malformed rule JSON: the caller must log and keep
	// the previous rule set installed.
	ErrConfig = errors.New("config error")

	// ErrConnect marks a failure opening the tunnel or a direct upstream
	// socket.
	ErrConnect = errors.New("connect error")

	// ErrFraming marks bad magic, a decrypt failure, or a truncated
	// record: fatal for the tunnel connection.
	ErrFraming = errors.New("framing error")

	// ErrAuth marks a LoginFail response from the relay.
	ErrAuth = errors.New("auth error")

	// ErrFlow marks a mailbox send failure or receive-end closure: the
	// owning handler must terminate and release its resources.
	ErrFlow = errors.New("flow error")

	// ErrClient marks a client-socket error local to one handler.
	ErrClient = errors.New("client error")
)
