package keeper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRequests(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requests.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write requests: %v", err)
	}
	return path
}

func TestLoadRequests(t *testing.T) {
	path := writeRequests(t, `[
		{
			"kind": "claim",
			"signature": "0x`+strings.Repeat("11", 65)+`",
			"payload": {"position_id": 1, "interval": 3600, "nonce": 1}
		},
		{
			"kind": "close",
			"signature": "0x`+strings.Repeat("22", 65)+`",
			"payload": {"position_id": 2, "trigger_sqrt_price_x96": 79228162514264337593543950336, "below_or_above": true, "nonce": 1}
		},
		{
			"kind": "rebalance",
			"signature": "0x`+strings.Repeat("33", 65)+`",
			"payload": {"position_id": 3, "nonce": 7}
		}
	]`)

	requests, err := LoadRequests(path)
	if err != nil {
		t.Fatalf("LoadRequests: %v", err)
	}
	if len(requests) != 3 {
		t.Fatalf("got %d requests, want 3", len(requests))
	}
	for i, want := range []uint64{1, 2, 3} {
		if got := requests[i].PositionID(); got != want {
			t.Fatalf("request %d position = %d, want %d", i, got, want)
		}
	}
	if requests[0].Kind != KindClaim || requests[1].Kind != KindClose || requests[2].Kind != KindRebalance {
		t.Fatalf("kinds not preserved")
	}
}

func TestLoadRequestsUnknownKind(t *testing.T) {
	path := writeRequests(t, `[{"kind": "burn", "signature": "0x00", "payload": {}}]`)
	if _, err := LoadRequests(path); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestLoadRequestsBadSignatureHex(t *testing.T) {
	path := writeRequests(t, `[{"kind": "claim", "signature": "nothex", "payload": {"position_id": 1}}]`)
	if _, err := LoadRequests(path); err == nil {
		t.Fatalf("expected error for malformed signature")
	}
}

func TestLoadRequestsMissingFile(t *testing.T) {
	if _, err := LoadRequests(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
