package chain

import (
	"encoding/json"
	"testing"

	"nftsync/internal/model"
)

const sampleTrace = `{
  "type": "CALL", "from": "0x00000000000000000000000000000000000000a1", "to": "0x00000000000000000000000000000000000000e0", "value": "0x96",
  "logs": [{"address": "0x00000000000000000000000000000000000000c1", "position": "0x1"}],
  "calls": [
    {"type": "CALL", "from": "0x00000000000000000000000000000000000000e0", "to": "0x00000000000000000000000000000000000000b0", "value": "0x64"},
    {"type": "CALL", "from": "0x00000000000000000000000000000000000000e0", "to": "0x00000000000000000000000000000000000000fe", "value": "0x32",
     "logs": [{"address": "0x00000000000000000000000000000000000000c1", "position": "0x0"}]},
    {"type": "CALL", "from": "0x00000000000000000000000000000000000000e0", "to": "0x00000000000000000000000000000000000000dd", "value": "0x5", "error": "execution reverted"},
    {"type": "STATICCALL", "from": "0x00000000000000000000000000000000000000e0", "to": "0x00000000000000000000000000000000000000cc", "value": "0x0"},
    {"type": "CALL", "from": "0x00000000000000000000000000000000000000e0", "to": "0x00000000000000000000000000000000000000b0", "value": "0x1"}
  ]
}`

func TestNativePaymentsPositions(t *testing.T) {
	var root callFrame
	if err := json.Unmarshal([]byte(sampleTrace), &root); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	payments := nativePayments(root, 10)
	if len(payments) != 4 {
		t.Fatalf("expected 4 payments, got %d: %+v", len(payments), payments)
	}

	want := []struct {
		amount   int64
		logIndex uint64
		after    bool
	}{
		{150, 10, false}, // top level value, before any log
		{100, 10, false}, // first call, still before any log
		{50, 10, true},   // after the root log emitted at position 1
		{1, 11, true},    // after the nested log as well
	}
	for i, w := range want {
		p := payments[i]
		if p.Amount.Int64() != w.amount || p.LogIndex != w.logIndex || p.AfterLog != w.after {
			t.Fatalf("payment %d: got %+v want %+v", i, p, w)
		}
		if p.Token != model.ZeroAddress {
			t.Fatalf("payment %d token %s", i, p.Token)
		}
	}
}
