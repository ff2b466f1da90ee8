package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"farmcall/internal/balancer"
	"farmcall/internal/jsonrpc"
	"farmcall/internal/upstream"
)

type rpcHandler func(req jsonrpc.Request) (status int, body string)

func newRPCServer(t *testing.T, hits *atomic.Int32, h rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		data, _ := io.ReadAll(r.Body)
		var req jsonrpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		status, body := h(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newExecutor(t *testing.T, reg prometheus.Registerer, urls ...string) *Executor {
	t.Helper()
	ups := make([]*upstream.Upstream, 0, len(urls))
	for i, u := range urls {
		ups = append(ups, upstream.NewUpstream(upstream.Config{
			Name:           string(rune('a' + i)),
			RPCURL:         u,
			Weight:         1,
			Role:           upstream.RoleMain,
			RequestTimeout: time.Second,
			Logger:         zerolog.Nop(),
		}))
	}
	pool := upstream.NewPoolFromUpstreams(ups, zerolog.Nop())
	return NewExecutor(
		balancer.NewWeightedRoundRobin(pool),
		pool,
		RetryConfig{Enabled: true, MaxAttempts: 3},
		NewMetrics(reg),
		zerolog.Nop(),
	)
}

func TestCallContractSendsEthCall(t *testing.T) {
	var hits atomic.Int32
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	srv := newRPCServer(t, &hits, func(req jsonrpc.Request) (int, string) {
		if req.Method != jsonrpc.MethodCall {
			t.Errorf("expected eth_call, got %s", req.Method)
		}
		var params []json.RawMessage
		_ = json.Unmarshal(req.Params, &params)
		var args jsonrpc.CallArgs
		_ = json.Unmarshal(params[0], &args)
		if common.HexToAddress(args.To) != target {
			t.Errorf("unexpected target %s", args.To)
		}
		if args.Data != "0x1234" {
			t.Errorf("unexpected data %s", args.Data)
		}
		if string(params[1]) != `"0x10"` {
			t.Errorf("unexpected block tag %s", params[1])
		}
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xbeef"}`
	})

	exec := newExecutor(t, nil, srv.URL)
	out, err := exec.CallContract(context.Background(), ethereum.CallMsg{To: &target, Data: []byte{0x12, 0x34}}, big16())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0] != 0xbe || out[1] != 0xef {
		t.Errorf("unexpected output %x", out)
	}
}

func TestExecuteRetriesNextUpstream(t *testing.T) {
	var badHits, goodHits atomic.Int32
	bad := newRPCServer(t, &badHits, func(jsonrpc.Request) (int, string) {
		return http.StatusBadGateway, "upstream down"
	})
	good := newRPCServer(t, &goodHits, func(jsonrpc.Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x2a"}`
	})

	reg := prometheus.NewRegistry()
	exec := newExecutor(t, reg, bad.URL, good.URL)

	n, err := exec.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("expected block 42, got %d", n)
	}
	if badHits.Load() != 1 || goodHits.Load() != 1 {
		t.Errorf("expected one hit each, got bad=%d good=%d", badHits.Load(), goodHits.Load())
	}

	failed := testutil.ToFloat64(exec.metrics.requests.WithLabelValues("a", jsonrpc.MethodBlockNumber, outcomeFailed))
	if failed != 1 {
		t.Errorf("expected 1 transport failure recorded, got %v", failed)
	}
	if got := testutil.ToFloat64(exec.metrics.breakers.WithLabelValues("b")); got != 0 {
		t.Errorf("expected closed breaker gauge for b, got %v", got)
	}
}

func TestExecuteReportsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := newRPCServer(t, &hits, func(jsonrpc.Request) (int, string) {
		return http.StatusBadGateway, "upstream down"
	})

	u := upstream.NewUpstream(upstream.Config{
		Name:           "flaky",
		RPCURL:         srv.URL,
		Weight:         1,
		Role:           upstream.RoleMain,
		RequestTimeout: time.Second,
		CircuitBreaker: upstream.CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, RecoveryTimeout: time.Hour},
		Logger:         zerolog.Nop(),
	})
	pool := upstream.NewPoolFromUpstreams([]*upstream.Upstream{u}, zerolog.Nop())
	exec := NewExecutor(balancer.NewWeightedRoundRobin(pool), pool, RetryConfig{Enabled: false}, NewMetrics(prometheus.NewRegistry()), zerolog.Nop())

	if _, err := exec.BlockNumber(context.Background()); err == nil {
		t.Fatal("expected error from failing upstream")
	}
	if got := testutil.ToFloat64(exec.metrics.breakers.WithLabelValues("flaky")); got != 2 {
		t.Errorf("expected open breaker gauge 2, got %v", got)
	}
}

func TestExecuteDoesNotRetryRevert(t *testing.T) {
	var firstHits, secondHits atomic.Int32
	first := newRPCServer(t, &firstHits, func(jsonrpc.Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":3,"message":"execution reverted"}}`
	})
	second := newRPCServer(t, &secondHits, func(jsonrpc.Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x"}`
	})

	exec := newExecutor(t, nil, first.URL, second.URL)
	target := common.HexToAddress("0x01")
	_, err := exec.CallContract(context.Background(), ethereum.CallMsg{To: &target}, nil)

	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *jsonrpc.Error, got %v", err)
	}
	if secondHits.Load() != 0 {
		t.Error("revert must not be retried on another upstream")
	}
}

func TestExecuteAllUpstreamsFail(t *testing.T) {
	var hits atomic.Int32
	srv := newRPCServer(t, &hits, func(jsonrpc.Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"header not found"}}`
	})

	exec := newExecutor(t, nil, srv.URL)
	_, err := exec.BlockNumber(context.Background())
	if !errors.Is(err, ErrAllUpstreamsFailed) {
		t.Fatalf("expected ErrAllUpstreamsFailed, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("single upstream should be tried once, got %d", hits.Load())
	}
}

func TestExecuteNoUpstreams(t *testing.T) {
	exec := newExecutor(t, nil)
	_, err := exec.BlockNumber(context.Background())
	if !errors.Is(err, ErrNoUpstreamsAvailable) {
		t.Fatalf("expected ErrNoUpstreamsAvailable, got %v", err)
	}
}

func big16() *big.Int {
	return big.NewInt(16)
}

func TestChainID(t *testing.T) {
	var hits atomic.Int32
	srv := newRPCServer(t, &hits, func(req jsonrpc.Request) (int, string) {
		if req.Method != jsonrpc.MethodChainID {
			t.Errorf("expected eth_chainId, got %s", req.Method)
		}
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x6c1"}`
	})

	id, err := newExecutor(t, nil, srv.URL).ChainID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1729 {
		t.Errorf("expected chain id 1729, got %d", id)
	}
}
