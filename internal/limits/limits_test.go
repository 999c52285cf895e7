package limits

import "testing"

func TestNewTable_Defaults(t *testing.T) {
	table, err := NewTable(nil)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if len(table) != len(Defaults) {
		t.Fatalf("expected %d resources, got %d", len(Defaults), len(table))
	}
	if table[WorkerRequests] != 10_000_000 {
		t.Fatalf("unexpected worker_requests limit: %d", table[WorkerRequests])
	}
}

func TestNewTable_Overrides(t *testing.T) {
	table, err := NewTable(map[string]int64{"kv_writes": 500})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if table[KVWrites] != 500 {
		t.Fatalf("expected override 500, got %d", table[KVWrites])
	}
	if table[KVReads] != Defaults[KVReads] {
		t.Fatalf("unexpected kv_reads limit: %d", table[KVReads])
	}
}

func TestNewTable_Invalid(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]int64
	}{
		{name: "unknown_resource", overrides: map[string]int64{"bogus": 1}},
		{name: "zero_limit", overrides: map[string]int64{"kv_reads": 0}},
		{name: "negative_limit", overrides: map[string]int64{"kv_reads": -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTable(tc.overrides); err == nil {
				t.Fatalf("expected error for %v", tc.overrides)
			}
		})
	}
}

func TestResources_StableOrder(t *testing.T) {
	table, err := NewTable(nil)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	first := table.Resources()
	second := table.Resources()
	if len(first) != len(table) {
		t.Fatalf("expected %d resources, got %d", len(table), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("resource order not stable: %v vs %v", first, second)
		}
	}
}
