// Package grpcdispatch sends a single already-rendered request body to a
// gRPC method path over a pooled HTTP/2 connection, framing and parsing the
// message with grpcwire so the wire layout matches the protocol exactly.
// Lattice never generates or consumes .proto descriptors: the body a
// `@grpc` field renders is the request message already, and the response
// frame's payload is decoded the same way an `@http` JSON body would be.
package grpcdispatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"google.golang.org/grpc/codes"

	"github.com/latticegql/lattice/internal/eventbus"
	"github.com/latticegql/lattice/internal/events"
	"github.com/latticegql/lattice/internal/grpcwire"
)

// Client dials gRPC targets over HTTP/2, pooling one Transport per target
// host so repeated calls reuse connections instead of reconnecting.
type Client struct {
	mu         sync.RWMutex
	transports map[string]*http2.Transport
	useTLS     bool
}

// New returns a Client. When useTLS is false, connections are made in
// cleartext (h2c) — the common case for calling gRPC services on a private
// network without a sidecar terminating TLS.
func New(useTLS bool) *Client {
	return &Client{transports: make(map[string]*http2.Transport), useTLS: useTLS}
}

func (c *Client) transportFor(target string) *http2.Transport {
	c.mu.RLock()
	tr, ok := c.transports[target]
	c.mu.RUnlock()
	if ok {
		return tr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok := c.transports[target]; ok {
		return tr
	}

	if c.useTLS {
		tr = &http2.Transport{}
	} else {
		// h2c: speak HTTP/2 over a plaintext TCP dial, skipping the usual
		// TLS-ALPN negotiation entirely.
		tr = &http2.Transport{
			AllowHTTP: true,
			DialTLS: func(network, addr string, _ *tls.Config) (net.Conn, error) {
				return net.Dial(network, addr)
			},
		}
	}
	c.transports[target] = tr
	return tr
}

// Call issues one gRPC request: target is the dial address ("host:port"),
// path is "/<package>.<service>/<method>", and body is the rendered
// message payload (not yet framed). It returns the response message
// payload, unframed.
func (c *Client) Call(ctx context.Context, target, path string, body []byte) (out []byte, err error) {
	service, method := splitPath(path)
	start := time.Now()
	code := codes.OK
	eventbus.Publish(ctx, events.GRPCClientStart{Service: service, Method: method, Target: target})
	defer func() {
		if err != nil && code == codes.OK {
			code = codes.Unavailable
		}
		eventbus.Publish(ctx, events.GRPCClientFinish{
			Service: service, Method: method, Target: target,
			Code: code, Err: err, Duration: time.Since(start),
		})
	}()

	framed := grpcwire.Frame(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+target+path, io.NopCloser(bytesReader(framed)))
	if err != nil {
		return nil, fmt.Errorf("grpcdispatch: building request: %w", err)
	}
	req.ContentLength = int64(len(framed))
	req.Header.Set("Content-Type", "application/grpc+json")
	req.Header.Set("TE", "trailers")

	resp, err := c.transportFor(target).RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("grpcdispatch: %s %s: %w", target, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("grpcdispatch: reading response: %w", err)
	}

	if status := grpcStatus(resp); status != "" && status != "0" {
		if n, perr := strconv.Atoi(status); perr == nil {
			code = codes.Code(n)
		}
		msg := resp.Trailer.Get("grpc-message")
		if msg == "" {
			msg = resp.Header.Get("grpc-message")
		}
		return nil, fmt.Errorf("grpcdispatch: %s %s: grpc-status %s: %s", target, path, status, msg)
	}

	payload, err := grpcwire.Parse(respBody)
	if err != nil {
		return nil, fmt.Errorf("grpcdispatch: %s %s: %w", target, path, err)
	}
	return payload, nil
}

// grpcStatus reads grpc-status from either the header (servers that fail
// before sending a body) or the trailer (the normal case, available only
// once the body has been fully drained).
func grpcStatus(resp *http.Response) string {
	if s := resp.Trailer.Get("grpc-status"); s != "" {
		return s
	}
	return resp.Header.Get("grpc-status")
}

func bytesReader(b []byte) io.Reader {
	return strings.NewReader(string(b))
}

// splitPath decomposes "/<package>.<service>/<method>" into its qualified
// service name and method.
func splitPath(path string) (service, method string) {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[:i], trimmed[i+1:]
	}
	return trimmed, ""
}
