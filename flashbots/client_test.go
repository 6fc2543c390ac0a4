package flashbots

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/michaelpento.lv/backrunner/signer"
	"github.com/michaelpento.lv/backrunner/utils/testutils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

type capturedRequest struct {
	body   []byte
	header http.Header
}

type relayStub struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	reply    func(id uint64) string
}

func (s *relayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{body: body, header: r.Header.Clone()})
	status, reply := s.status, s.reply
	s.mu.Unlock()

	var req Request
	_ = json.Unmarshal(body, &req)

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("bundle rejected"))
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	if reply != nil {
		_, _ = w.Write([]byte(reply(req.ID)))
		return
	}
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + jsonNumber(req.ID) + `,"result":{"bundleHash":"0x01"}}`))
}

func jsonNumber(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func newTestClient(t *testing.T, url string, opts ClientOptions) (*Client, *signer.Identity) {
	id, err := signer.ParseIdentity(testutils.HardhatKey, big.NewInt(1))
	require.NoError(t, err)
	return NewClient(url, id, opts, zaptest.NewLogger(t)), id
}

func testBundle(t *testing.T) *Bundle {
	b, err := NewBackrunBundle(common.HexToHash("0xfeed"), []byte{0x02, 0xf8}, false, 100, DefaultBlocksToTry)
	require.NoError(t, err)
	return b
}

func TestSendBundleEnvelope(t *testing.T) {
	stub := &relayStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	client, id := newTestClient(t, server.URL, ClientOptions{})
	resp, err := client.SendBundle(context.Background(), testBundle(t))
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"bundleHash":"0x01"}`, string(resp.Result))
	assert.Equal(t, uint64(1), resp.ID)

	require.Len(t, stub.requests, 1)
	captured := stub.requests[0]
	assert.Equal(t, contentTypeJSON, captured.header.Get("Content-Type"))
	assert.Equal(t, contentTypeJSON, captured.header.Get("Accept"))

	assert.JSONEq(t, `{
		"method": "mev_sendBundle",
		"params": [{
			"version": "beta-1",
			"inclusion": {"block": "0x65", "maxBlock": "0x6f"},
			"body": [
				{"hash": "0x000000000000000000000000000000000000000000000000000000000000feed"},
				{"tx": "0x02f8", "canRevert": false}
			]
		}],
		"id": 1,
		"jsonrpc": "2.0"
	}`, string(captured.body))

	// the header signs the exact bytes on the wire
	parts := strings.SplitN(captured.header.Get(flashbotsXHeader), ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, id.Address().Hex(), parts[0])

	sig, err := hexutil.Decode(parts[1])
	require.NoError(t, err)
	recovered, err := signer.RecoverPayloadSigner(captured.body, sig)
	require.NoError(t, err)
	assert.Equal(t, id.Address(), recovered)
}

func TestRequestIDsIncrement(t *testing.T) {
	stub := &relayStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, ClientOptions{})
	bundle := testBundle(t)

	for want := uint64(1); want <= 5; want++ {
		var (
			resp *Response
			err  error
		)
		if want%2 == 0 {
			resp, err = client.SimBundle(context.Background(), bundle)
		} else {
			resp, err = client.SendBundle(context.Background(), bundle)
		}
		require.NoError(t, err)
		assert.Equal(t, want, resp.ID)
	}

	var methods []string
	for _, r := range stub.requests {
		var req Request
		require.NoError(t, json.Unmarshal(r.body, &req))
		methods = append(methods, req.Method)
	}
	assert.Equal(t, []string{MethodSendBundle, MethodSimBundle, MethodSendBundle, MethodSimBundle, MethodSendBundle}, methods)

	// a second client starts its own sequence
	other, _ := newTestClient(t, server.URL, ClientOptions{})
	resp, err := other.SendBundle(context.Background(), bundle)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.ID)
}

func TestRequestIDsUniqueUnderConcurrency(t *testing.T) {
	stub := &relayStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, ClientOptions{})
	bundle := testBundle(t)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.SendBundle(context.Background(), bundle)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, r := range stub.requests {
		var req Request
		require.NoError(t, json.Unmarshal(r.body, &req))
		assert.False(t, seen[req.ID], "id %d reused", req.ID)
		seen[req.ID] = true
	}
	assert.Len(t, seen, n)
	for i := uint64(1); i <= n; i++ {
		assert.True(t, seen[i])
	}
}

func TestRPCErrorPassthrough(t *testing.T) {
	stub := &relayStub{reply: func(id uint64) string {
		return `{"jsonrpc":"2.0","id":` + jsonNumber(id) + `,"error":{"code":-32000,"message":"unable to decode txs"}}`
	}}
	server := httptest.NewServer(stub)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, ClientOptions{})
	resp, err := client.SendBundle(context.Background(), testBundle(t))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Equal(t, "unable to decode txs", resp.Error.Message)
	assert.Nil(t, resp.Result)
}

func TestHTTPRejection(t *testing.T) {
	stub := &relayStub{status: http.StatusForbidden}
	server := httptest.NewServer(stub)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, ClientOptions{MaxRetries: 3})
	_, err := client.SendBundle(context.Background(), testBundle(t))

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, "bundle rejected", httpErr.Body)

	// rejections are not retried
	assert.Len(t, stub.requests, 1)
}

func TestTransportRetry(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	stub := &relayStub{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			// drop the connection without a response
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		stub.ServeHTTP(w, r)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, ClientOptions{MaxRetries: 1, RetryBackoff: time.Millisecond})
	resp, err := client.SendBundle(context.Background(), testBundle(t))
	require.NoError(t, err)
	// the retry is a new request with a new id
	assert.Equal(t, uint64(2), resp.ID)
}

func TestTruncatedResponseNotRetried(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		// the relay has the bundle, only the reply is cut short
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0"`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, ClientOptions{MaxRetries: 3, RetryBackoff: time.Millisecond})
	_, err := client.SendBundle(context.Background(), testBundle(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read response")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(t, server.URL, ClientOptions{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.SendBundle(context.Background(), testBundle(t))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRateLimitWait(t *testing.T) {
	stub := &relayStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	client, _ := newTestClient(t, server.URL, ClientOptions{Limiter: limiter, LimiterWait: 20 * time.Millisecond})

	_, err := client.SendBundle(context.Background(), testBundle(t))
	require.NoError(t, err)

	_, err = client.SendBundle(context.Background(), testBundle(t))
	assert.ErrorContains(t, err, "relay rate limit")
	assert.Len(t, stub.requests, 1)
}
