package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gpaciente/psync/rpc/common"
	"github.com/gpaciente/psync/rpc/transport"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	baseURL    *url.URL
	client     *http.Client
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	// Parse the default endpoint (optional, peers are addressed per request)
	if config.Endpoint != "" {
		parsed, err := parseBaseURL(config.Endpoint)
		if err != nil {
			return err
		}
		t.baseURL = parsed
	}

	// Create client with pooled transport
	t.client = &http.Client{
		Timeout: config.Timeout(),
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.retryCount = config.RetryCount

	// No error
	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	// Check if the transport is initialized
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	requestURL, err := t.resolve(req)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	// Send the request (with retries, at least one attempt)
	var httpResponse *http.Response
	attempts := max(1, t.retryCount)
	for i := 0; i < attempts; i++ {
		var httpRequest *http.Request
		httpRequest, err = http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader(req.Body))
		if err != nil {
			return nil, err
		}
		if req.ContentType != "" {
			httpRequest.Header.Set("Content-Type", req.ContentType)
		}
		if req.Accept != "" {
			httpRequest.Header.Set("Accept", req.Accept)
		}

		httpResponse, err = t.client.Do(httpRequest)
		if err == nil || ctx.Err() != nil {
			break
		}
		Logger.Debugf("attempt %d/%d %s %s failed: %v", i+1, attempts, method, requestURL, err)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	// Read the response body
	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, err
	}

	return &transport.Response{
		StatusCode:  httpResponse.StatusCode,
		ContentType: httpResponse.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (t *httpClientTransport) Close() error {
	// Close the client
	if t.client != nil {
		t.client.CloseIdleConnections()
	}

	// Reset the client and base url
	t.client = nil
	t.baseURL = nil

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// resolve builds the absolute request URL
func (t *httpClientTransport) resolve(req *transport.Request) (string, error) {
	base := t.baseURL
	if req.BaseURL != "" {
		parsed, err := parseBaseURL(req.BaseURL)
		if err != nil {
			return "", err
		}
		base = parsed
	}
	if base == nil {
		return "", fmt.Errorf("no endpoint configured and request has no base url")
	}

	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + req.Path
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String(), nil
}

// parseBaseURL accepts "host:port" as well as full URLs
func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", raw)
	}
	return parsed, nil
}
