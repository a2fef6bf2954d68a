package bridge

import "errors"

// Transport-level failures. All of them invalidate the current socket;
// the next Send re-establishes the connection from scratch.
var (
	// ErrConnection means the transport could not be established, or an
	// established connection broke mid-call. Surfaced after the connect
	// retry budget is exhausted.
	ErrConnection = errors.New("bridge: connection error")

	// ErrTimeout means the host did not answer within the call timeout.
	// The socket is discarded; the host may still be working, but its
	// eventual answer would belong to an abandoned call.
	ErrTimeout = errors.New("bridge: timeout waiting for host")

	// ErrProtocol means the host answered with bytes that do not decode
	// as a framed result. The socket is in an unknown state and is closed.
	ErrProtocol = errors.New("bridge: protocol violation")
)
