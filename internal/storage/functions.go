package storage

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"modernc.org/sqlite"

	"github.com/khanglvm/tool-finder-mcp/internal/similarity"
)

// cosineDistanceFunc is the SQL name of the vector distance operator.
const cosineDistanceFunc = "cosine_distance"

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs the custom scalar functions on the driver.
// Registration is process-wide and must precede the first connection; its
// outcome is reported to every caller.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(cosineDistanceFunc, 2, cosineDistance)
	})
	return registerErr
}

// cosineDistance implements cosine_distance(a BLOB, b BLOB) REAL.
func cosineDistance(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}

	a, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: first argument must be a blob", cosineDistanceFunc)
	}
	b, ok := args[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: second argument must be a blob", cosineDistanceFunc)
	}

	return similarity.BlobDistance(a, b)
}
