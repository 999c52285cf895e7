package limits

import "fmt"

// Resource identifies a metered platform counter tracked against a monthly
// allowance.
type Resource string

const (
	WorkerRequests Resource = "worker_requests"
	KVReads        Resource = "kv_reads"
	KVWrites       Resource = "kv_writes"
	D1RowsRead     Resource = "d1_rows_read"
	D1RowsWritten  Resource = "d1_rows_written"
)

// Defaults are the monthly allowances applied when the service catalog does
// not override a resource.
var Defaults = map[Resource]int64{
	WorkerRequests: 10_000_000,
	KVReads:        10_000_000,
	KVWrites:       1_000_000,
	D1RowsRead:     25_000_000,
	D1RowsWritten:  50_000_000,
}

// Table maps each tracked resource to its monthly allowance.
type Table map[Resource]int64

// NewTable builds a limits table from the defaults, applying any overrides.
// Overriding an unknown resource or setting a non-positive allowance is an
// error so a typo in the catalog cannot silently drop a resource from
// monitoring.
func NewTable(overrides map[string]int64) (Table, error) {
	table := make(Table, len(Defaults))
	for resource, limit := range Defaults {
		table[resource] = limit
	}
	for name, limit := range overrides {
		resource := Resource(name)
		if _, ok := table[resource]; !ok {
			return nil, fmt.Errorf("unknown resource %q in limit overrides", name)
		}
		if limit <= 0 {
			return nil, fmt.Errorf("resource %q: limit must be greater than zero", name)
		}
		table[resource] = limit
	}
	return table, nil
}

// Resources returns the tracked resource keys in a stable order.
func (t Table) Resources() []Resource {
	ordered := []Resource{WorkerRequests, KVReads, KVWrites, D1RowsRead, D1RowsWritten}
	result := make([]Resource, 0, len(t))
	for _, resource := range ordered {
		if _, ok := t[resource]; ok {
			result = append(result, resource)
		}
	}
	return result
}
