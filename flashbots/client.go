package flashbots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON  = "application/json"
	flashbotsXHeader = "X-Flashbots-Signature"
	jsonRPCVersion   = "2.0"
	MethodSendBundle = "mev_sendBundle"
	MethodSimBundle  = "mev_simBundle"
)

// PayloadSigner signs request bodies for the relay's auth header.
type PayloadSigner interface {
	Address() common.Address
	SignPayload(body []byte) ([]byte, error)
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
}

// RPCError is a JSON-RPC error object returned by the relay.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// Response is the relay's JSON-RPC answer, passed through uninterpreted.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// HTTPError is returned when the relay answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("relay request failed with status %d: %s", e.StatusCode, e.Body)
}

// transportError marks failures where the request may not have reached the relay.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// ClientOptions tunes a Client.
type ClientOptions struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Limiter      *rate.Limiter
	LimiterWait  time.Duration
}

// Client represents an MEV-Share relay client. Each client numbers its
// requests from 1.
type Client struct {
	httpClient   *http.Client
	relayURL     string
	authSigner   PayloadSigner
	limiter      *rate.Limiter
	limiterWait  time.Duration
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger

	lastID atomic.Uint64
}

// NewClient creates a new relay client
func NewClient(relayURL string, authSigner PayloadSigner, opts ClientOptions, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 3
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		relayURL:     relayURL,
		authSigner:   authSigner,
		limiter:      opts.Limiter,
		limiterWait:  opts.LimiterWait,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       logger,
	}
}

// SendBundle submits a bundle with mev_sendBundle
func (c *Client) SendBundle(ctx context.Context, bundle *Bundle) (*Response, error) {
	return c.call(ctx, MethodSendBundle, bundle)
}

// SimBundle simulates a bundle with mev_simBundle. Not every relay serves it.
func (c *Client) SimBundle(ctx context.Context, bundle *Bundle) (*Response, error) {
	return c.call(ctx, MethodSimBundle, bundle)
}

func (c *Client) call(ctx context.Context, method string, bundle *Bundle) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.post(ctx, method, bundle)

		var terr *transportError
		if err == nil || !errors.As(err, &terr) || attempt >= c.maxRetries {
			return resp, err
		}

		c.logger.Warn("Relay request failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryBackoff * time.Duration(attempt+1)):
		}
	}
}

func (c *Client) post(ctx context.Context, method string, params ...interface{}) (*Response, error) {
	if c.limiter != nil {
		waitCtx := ctx
		if c.limiterWait > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, c.limiterWait)
			defer cancel()
		}
		if err := c.limiter.Wait(waitCtx); err != nil {
			return nil, fmt.Errorf("relay rate limit: %w", err)
		}
	}

	payload, err := json.Marshal(Request{
		Method:  method,
		Params:  params,
		ID:      c.lastID.Add(1),
		JSONRPC: jsonRPCVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	signature, err := c.authSigner.SignPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	header := fmt.Sprintf("%s:%s",
		c.authSigner.Address().Hex(),
		hexutil.Encode(signature),
	)

	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &out, nil
}
