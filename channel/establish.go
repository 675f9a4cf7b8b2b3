package channel

import (
	"context"
	"time"

	"github.com/lakebed/duckbridge/errors"
)

// DefaultHandshakeTimeout bounds the wait for bridge-ready.
const DefaultHandshakeTimeout = 5000 * time.Millisecond

type establishConfig struct {
	timeout time.Duration
}

// EstablishOption configures Establish.
type EstablishOption func(*establishConfig)

// WithHandshakeTimeout overrides the bridge-ready wait ceiling.
func WithHandshakeTimeout(d time.Duration) EstablishOption {
	return func(c *establishConfig) { c.timeout = d }
}

// Establish runs the host side of the transport handshake over the
// worker's default path. It creates a fresh pair, transfers one endpoint
// inside a bridge-init envelope, and waits for bridge-ready on the default
// path rather than on the new channel, so the reply cannot race RPC framing.
//
// On timeout the pair is closed and never reused; a higher-level retry
// re-runs Establish with new endpoints.
func Establish(ctx context.Context, conduit *Port, opts ...EstablishOption) (*Port, error) {
	cfg := establishConfig{timeout: DefaultHandshakeTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	host, remote := NewPair()
	if err := conduit.Post(Message{Kind: KindBridgeInit, Port: remote}); err != nil {
		host.Close()
		return nil, errors.Wrap(errors.PhaseHandshake, errors.KindClosed, err, "send bridge-init")
	}
	host.Start()

	waitCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	for {
		msg, err := conduit.Recv(waitCtx)
		if err != nil {
			host.Close()
			if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, errors.HandshakeTimeout(cfg.timeout.String())
			}
			return nil, errors.Wrap(errors.PhaseHandshake, errors.KindClosed, err, "wait bridge-ready")
		}
		if msg.Kind == KindBridgeReady {
			return host, nil
		}
		// Stale control traffic on the default path is skipped, not fatal.
	}
}
