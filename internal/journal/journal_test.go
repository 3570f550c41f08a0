package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestJournal(t *testing.T) (*Journal, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, zap.NewNop()), mr
}

func TestEmit_PushesJSON(t *testing.T) {
	j, mr := newTestJournal(t)
	asset := common.HexToAddress("0x2222222222222222222222222222222222222222")

	j.Emit(context.Background(), Event{
		Vault: "bank",
		Kind:  Deposited,
		ID:    big.NewInt(7),
		Asset: asset,
		Value: big.NewInt(500),
		Time:  1_000,
	})

	raw, err := mr.Lpop(fmt.Sprintf(EventQueueKeyFmt, "bank"))
	if err != nil {
		t.Fatal(err)
	}
	var got Event
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != Deposited || got.Value.Cmp(big.NewInt(500)) != 0 || got.Time != 1_000 {
		t.Fatalf("round-tripped event mismatch: %+v", got)
	}
}

func TestEmit_FillsTime(t *testing.T) {
	j, mr := newTestJournal(t)
	j.now = func() int64 { return 42 }

	j.Emit(context.Background(), Event{Vault: "bank", Kind: Used, Value: big.NewInt(1)})

	raw, err := mr.Lpop(fmt.Sprintf(EventQueueKeyFmt, "bank"))
	if err != nil {
		t.Fatal(err)
	}
	var got Event
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatal(err)
	}
	if got.Time != 42 {
		t.Fatalf("time = %d, want 42", got.Time)
	}
}

func TestEmit_NilRedisIsLogOnly(t *testing.T) {
	j := New(nil, zap.NewNop())
	// must not panic or block
	j.Emit(context.Background(), Event{Vault: "bank", Kind: Claimed, Value: big.NewInt(1)})
}

func TestMirrorSignID(t *testing.T) {
	j, mr := newTestJournal(t)
	ctx := context.Background()

	if !j.MirrorSignID(ctx, "gridle", big.NewInt(9)) {
		t.Fatal("first mirror reported duplicate")
	}
	if j.MirrorSignID(ctx, "gridle", big.NewInt(9)) {
		t.Fatal("second mirror reported fresh")
	}
	// vault name is part of the key
	if !j.MirrorSignID(ctx, "bank", big.NewInt(9)) {
		t.Fatal("same id in another vault reported duplicate")
	}
	if !mr.Exists(fmt.Sprintf(SignIDKeyFmt, "gridle", "9")) {
		t.Fatal("mirror key missing")
	}
}

func TestMirrorSignID_NilRedis(t *testing.T) {
	j := New(nil, zap.NewNop())
	if !j.MirrorSignID(context.Background(), "bank", big.NewInt(1)) {
		t.Fatal("nil-redis mirror must report fresh")
	}
}
