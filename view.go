package viewengine

import "fmt"

// DefaultMaxEmitBytes is the per-function emission budget applied to one
// document when the host does not choose its own limit (1 MiB).
const DefaultMaxEmitBytes = 1 << 20

// IndexType selects the view flavor a context serves. It decides which
// helper bindings the functions see: map/reduce views get the reduce
// helpers (sum, dateToArray, decodeBase64), spatial views only emit and log.
type IndexType int

const (
	IndexTypeMapReduce IndexType = iota
	IndexTypeSpatial
)

func (t IndexType) String() string {
	switch t {
	case IndexTypeMapReduce:
		return "mapreduce"
	case IndexTypeSpatial:
		return "spatial"
	default:
		return fmt.Sprintf("IndexType(%d)", int(t))
	}
}

// KVPair is one emitted view row. Key and Value hold JSON text.
type KVPair struct {
	Key   []byte
	Value []byte
}

// MapResult is the outcome of one map function over one document: either
// the ordered rows it emitted or the error that stopped it. Results for a
// document line up with the context's function registration order.
//
// The zero value is a valid empty-rows result.
type MapResult struct {
	rows []KVPair
	err  error
}

// KVs constructs a successful result holding the emitted rows.
func KVs(rows []KVPair) MapResult {
	return MapResult{rows: rows}
}

// Failure constructs a failed result. A nil err marks the result
// successful with no rows.
func Failure(err error) MapResult {
	return MapResult{err: err}
}

// KVs returns the emitted rows and whether the function succeeded.
// A function that emitted nothing returns (nil-or-empty, true).
func (r MapResult) KVs() ([]KVPair, bool) {
	if r.err != nil {
		return nil, false
	}
	return r.rows, true
}

// Err returns the failure, or nil for a successful result.
func (r MapResult) Err() error {
	return r.err
}

// Failed reports whether the function failed.
func (r MapResult) Failed() bool {
	return r.err != nil
}

// String renders a compact description for logs.
func (r MapResult) String() string {
	if r.err != nil {
		return fmt.Sprintf("error(%v)", r.err)
	}
	return fmt.Sprintf("rows(%d)", len(r.rows))
}
