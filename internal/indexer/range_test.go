package indexer

import (
	"errors"
	"reflect"
	"testing"

	"nftsync/internal/config"
)

func TestSplitRangeMainnetBatches(t *testing.T) {
	network, err := config.NetworkFor(1, nil)
	if err != nil {
		t.Fatalf("network: %v", err)
	}

	got, err := SplitRange(17_000_000, 17_000_039, network.BackfillBatchSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 17_000_000, To: 17_000_015},
		{From: 17_000_016, To: 17_000_031},
		{From: 17_000_032, To: 17_000_039},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
	if got[2].Len() != 8 {
		t.Fatalf("tail range holds %d blocks, want 8", got[2].Len())
	}
}

func TestSplitRangeOverriddenBatchSize(t *testing.T) {
	network, err := config.NetworkFor(11155111, map[string]string{"backfill-batch-size": "500"})
	if err != nil {
		t.Fatalf("network: %v", err)
	}

	got, err := SplitRange(4_000_000, 4_000_999, network.BackfillBatchSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].String() != "4000500-4000999" {
		t.Fatalf("unexpected ranges: %+v", got)
	}
	for _, r := range got {
		if r.Len() != 500 {
			t.Fatalf("range %s holds %d blocks", r, r.Len())
		}
	}
}

func TestSplitRangeSingleBlock(t *testing.T) {
	got, err := SplitRange(5, 5, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeAtChainTop(t *testing.T) {
	const top = ^uint64(0)
	got, err := SplitRange(top-2, top, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: top - 2, To: top - 1}, {From: top, To: top}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 16); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for reversed range, got %v", err)
	}
	if _, err := SplitRange(1, 10, 0); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for zero batch size, got %v", err)
	}
}
