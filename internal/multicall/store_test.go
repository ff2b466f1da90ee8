package multicall

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testCall(n byte) Call {
	return Call{Address: common.BytesToAddress([]byte{n}), CallData: []byte{0x01, n}}
}

func TestCallKey(t *testing.T) {
	c := Call{Address: common.HexToAddress("0x00000000000000000000000000000000000000AB"), CallData: []byte{0xde, 0xad}}
	want := "0x00000000000000000000000000000000000000ab-0xdead"
	if got := c.Key(); got != want {
		t.Errorf("Key() = %s, want %s", got, want)
	}

	c.GasRequired = 500
	if got := c.Key(); got != want+"-500" {
		t.Errorf("Key() with gas = %s", got)
	}
}

func TestStoreOutdatedCadence(t *testing.T) {
	s := newTestStore(t)
	c := testCall(1)

	s.AddListeners([]Call{c}, ListenerOptions{BlocksPerFetch: 5})
	if got := len(s.Outdated(10)); got != 1 {
		t.Fatalf("call without data must be outdated, got %d", got)
	}

	s.StoreResults([]Call{c}, []CallResult{{Success: true, ReturnData: []byte{1}}}, 10)
	if got := len(s.Outdated(14)); got != 0 {
		t.Errorf("result at 10 is fresh at 14 with 5 blocks per fetch, got %d outdated", got)
	}
	if got := len(s.Outdated(15)); got != 1 {
		t.Errorf("result at 10 is stale at 15 with 5 blocks per fetch, got %d outdated", got)
	}

	// the fastest live cadence wins
	s.AddListeners([]Call{c}, DefaultListenerOptions)
	if got := len(s.Outdated(11)); got != 1 {
		t.Errorf("expected refresh at 11 with an every-block listener, got %d", got)
	}
	s.RemoveListeners([]Call{c}, DefaultListenerOptions)
	if got := len(s.Outdated(11)); got != 0 {
		t.Errorf("expected slow cadence after removing fast listener, got %d", got)
	}
}

func TestStoreNeverReload(t *testing.T) {
	s := newTestStore(t)
	c := testCall(2)

	s.AddListeners([]Call{c}, NeverReload)
	if got := len(s.Outdated(100)); got != 1 {
		t.Fatalf("expected initial fetch, got %d", got)
	}
	s.StoreResults([]Call{c}, []CallResult{{Success: true, ReturnData: []byte{1}}}, 1)
	if got := len(s.Outdated(1_000_000)); got != 0 {
		t.Errorf("never-reload call must not refresh, got %d", got)
	}
}

func TestStoreSkipsInFlightFetch(t *testing.T) {
	s := newTestStore(t)
	c := testCall(3)
	s.AddListeners([]Call{c}, DefaultListenerOptions)

	s.MarkFetching([]Call{c}, 10)
	if got := len(s.Outdated(10)); got != 0 {
		t.Errorf("call fetching at 10 must be skipped at 10, got %d", got)
	}
	if got := len(s.Outdated(11)); got != 1 {
		t.Errorf("call fetching at 10 is outdated at 11, got %d", got)
	}
}

func TestStoreErrorsOnlyForMatchingFetch(t *testing.T) {
	s := newTestStore(t)
	c := testCall(4)
	s.AddListeners([]Call{c}, DefaultListenerOptions)

	s.MarkFetching([]Call{c}, 12)
	s.StoreErrors([]Call{c}, 11)
	if _, ok := s.Get(c.Key()); ok {
		t.Fatal("error from an older fetch must be ignored")
	}

	s.StoreErrors([]Call{c}, 12)
	entry, ok := s.Get(c.Key())
	if !ok || !entry.Failed || entry.BlockNumber != 12 {
		t.Fatalf("expected failed entry at 12, got %+v (ok=%v)", entry, ok)
	}
	if s.Version(c.Key()) != 1 {
		t.Errorf("expected version 1, got %d", s.Version(c.Key()))
	}
}

func TestStoreResultsKeepNewest(t *testing.T) {
	s := newTestStore(t)
	c := testCall(5)
	s.AddListeners([]Call{c}, DefaultListenerOptions)

	s.StoreResults([]Call{c}, []CallResult{{Success: true, ReturnData: []byte{2}}}, 20)
	s.StoreResults([]Call{c}, []CallResult{{Success: true, ReturnData: []byte{1}}}, 19)

	entry, _ := s.Get(c.Key())
	if entry.BlockNumber != 20 || entry.Data[0] != 2 {
		t.Errorf("older result overwrote newer one: %+v", entry)
	}
	if s.Version(c.Key()) != 1 {
		t.Errorf("rejected write must not bump the version, got %d", s.Version(c.Key()))
	}
}

func TestStoreListenerLifecycle(t *testing.T) {
	s := newTestStore(t)
	c := testCall(6)

	s.AddListeners([]Call{c, c}, DefaultListenerOptions)
	<-s.Changed()
	s.RemoveListeners([]Call{c}, DefaultListenerOptions)
	if s.ListenerCount() != 1 {
		t.Fatalf("expected key still listened, got %d", s.ListenerCount())
	}
	s.RemoveListeners([]Call{c}, DefaultListenerOptions)
	if s.ListenerCount() != 0 {
		t.Errorf("expected no listeners, got %d", s.ListenerCount())
	}
	if got := len(s.Outdated(5)); got != 0 {
		t.Errorf("unlistened call must not be fetched, got %d", got)
	}
}

func TestChunkCalls(t *testing.T) {
	calls := make([]Call, 250)
	for i := range calls {
		calls[i] = testCall(byte(i))
	}

	chunks := chunkCalls(calls, DefaultChunkGasLimit, DefaultDefaultGasRequired)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("unexpected chunk sizes %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	heavy := testCall(1)
	heavy.GasRequired = 2 * DefaultChunkGasLimit
	chunks = chunkCalls([]Call{testCall(0), heavy, testCall(2)}, DefaultChunkGasLimit, DefaultDefaultGasRequired)
	if len(chunks) != 3 {
		t.Errorf("heavy call should be isolated, got %d chunks", len(chunks))
	}
}
