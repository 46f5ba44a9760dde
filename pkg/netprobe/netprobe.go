// Package netprobe implements the network connectivity probe: a cheap
// reachability check against the server host, used to distinguish a
// genuine disconnect from an ordinary request error.
package netprobe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// probeTimeout bounds how long a single reachability check may take.
const probeTimeout = 5 * time.Second

// ProbeInterval is the recommended spacing between periodic reachability
// checks; callers are free to poll more or less often.
const ProbeInterval = 15 * time.Second

// Status classifies the result of a probe.
type Status uint8

const (
	// StatusConnected indicates the host responded.
	StatusConnected Status = iota
	// StatusDisconnected indicates the request failed to connect at all
	// (DNS failure, connection refused, timeout establishing the
	// connection).
	StatusDisconnected
	// StatusError indicates the request failed for some other reason
	// (e.g. a canceled context); it is not evidence of an outage.
	StatusError
)

// Prober checks reachability of a single host.
type Prober struct {
	Host       string
	HTTPClient *http.Client
}

// New constructs a Prober for host using a client with probeTimeout.
func New(host string) *Prober {
	return &Prober{
		Host:       host,
		HTTPClient: &http.Client{Timeout: probeTimeout},
	}
}

// Check performs a single reachability probe.
func (p *Prober) Check(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Host, nil)
	if err != nil {
		return StatusError, err
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		if isConnectError(err) {
			return StatusDisconnected, nil
		}
		return StatusError, err
	}
	resp.Body.Close()

	return StatusConnected, nil
}

// IsOnline reports whether the host is currently reachable, swallowing
// any non-connectivity error as "not online" the way the reference
// implementation's is_online helper collapses all non-Connect statuses.
func (p *Prober) IsOnline(ctx context.Context) bool {
	status, _ := p.Check(ctx)
	return status == StatusConnected
}

// isConnectError reports whether err represents a failure to establish a
// connection at all, as opposed to some other request failure.
func isConnectError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
