// Package storage persists replay results and engine snapshots.
package storage

import "clamm/internal/model"

// ResultSink receives replay results in sequence order.
type ResultSink interface {
	PutResults(results []model.Result) error
}
