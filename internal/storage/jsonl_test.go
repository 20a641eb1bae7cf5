package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nftsync/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "decode_errors.jsonl")
	s := NewJsonlStorage(path)

	ev := model.EnhancedEvent{SubKind: model.SubKindERC20Transfer, Params: model.BaseEventParams{TxHash: "0xaa", LogIndex: 3}}
	if err := s.PutDecodeErrors([]model.DecodeError{model.NewDecodeError(ev, errors.New("bad data"))}); err != nil {
		t.Fatalf("put decode errors: %v", err)
	}
	other := ev
	other.Params.LogIndex = 4
	if err := s.PutDecodeErrors([]model.DecodeError{
		model.NewDecodeError(other, errors.New("short data")),
		model.NewDecodeError(other, errors.New("bad offset")),
	}); err != nil {
		t.Fatalf("put decode errors: %v", err)
	}
	if err := s.PutDecodeErrors(nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line not json: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0]["error"] != "bad data" || lines[0]["sub_kind"] != "erc20-transfer" {
		t.Fatalf("decode error line mismatch: %v", lines[0])
	}
}
