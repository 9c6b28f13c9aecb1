package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/rpc/common"
	"github.com/gpaciente/psync/rpc/serializer"
	"github.com/gpaciente/psync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// APIError is returned when an instance answers with a non-2xx status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Message)
}

// PeerClient talks to the sync API of other instances.
// All methods take the target peer; the zero Peer addresses the endpoint
// of the client configuration.
type PeerClient struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// NewPeerClient creates a new client and connects the transport
func NewPeerClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*PeerClient, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &PeerClient{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// Close releases the transport
func (c *PeerClient) Close() error {
	return c.transport.Close()
}

// PeerFromEndpoint parses "host:port" or a URL into a peer.
// A missing port defaults to common.DefaultPort.
func PeerFromEndpoint(endpoint string) (discovery.Peer, error) {
	raw := strings.TrimSpace(endpoint)
	if raw == "" {
		return discovery.Peer{}, fmt.Errorf("empty endpoint")
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return discovery.Peer{}, err
		}
		raw = u.Host
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		// no port given
		host, portStr = strings.Trim(raw, "[]"), strconv.Itoa(common.DefaultPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return discovery.Peer{}, fmt.Errorf("invalid port in endpoint %q", endpoint)
	}
	if host == "" {
		return discovery.Peer{}, fmt.Errorf("invalid host in endpoint %q", endpoint)
	}
	return discovery.Peer{IP: host, Port: port}, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// baseURL returns the address of peer, empty for the zero peer
func baseURL(peer discovery.Peer) string {
	if peer.IP == "" {
		return ""
	}
	return "http://" + peer.Addr()
}

// invoke is a helper used for all calls: it serializes in (if not nil),
// sends the request and deserializes the answer into out (if not nil).
// Non-2xx answers become an *APIError carrying the message of the body.
func (c *PeerClient) invoke(ctx context.Context, peer discovery.Peer, method, path string, query url.Values, in, out any) error {
	return c.invokeWith(ctx, c.serializer, peer, method, path, query, in, out)
}

// invokeWith is invoke with an explicit codec for the request
func (c *PeerClient) invokeWith(ctx context.Context, codec serializer.IRPCSerializer, peer discovery.Peer, method, path string, query url.Values, in, out any) error {
	req := &transport.Request{
		Method:  method,
		BaseURL: baseURL(peer),
		Path:    path,
		Query:   query,
		Accept:  codec.ContentType(),
	}

	// Serialize the request
	if in != nil {
		body, err := codec.Serialize(in)
		if err != nil {
			return err
		}
		req.Body = body
		req.ContentType = codec.ContentType()
	}

	// Send the request
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return err
	}

	// The peer may answer in another format than requested
	s := serializer.ForContentType(resp.ContentType)

	// Check if the response is an error response
	if !resp.OK() {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var basic common.BasicResponse
		if err := s.Deserialize(resp.Body, &basic); err == nil {
			apiErr.Message = basic.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	// Deserialize the response
	if err := s.Deserialize(resp.Body, out); err != nil {
		return fmt.Errorf("invalid response from %s%s: %w", peerName(peer), path, err)
	}
	return nil
}

func peerName(peer discovery.Peer) string {
	if peer.IP == "" {
		return "endpoint"
	}
	return peer.Addr()
}
