package service

import "fmt"

// BatchResult aggregates per-item outcomes of a batch operation. A failing
// item becomes an entry in Errors; the call itself still succeeds.
type BatchResult[T any] struct {
	Succeeded    []T      `json:"succeeded"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	Errors       []string `json:"errors"`
}

// Partial reports whether at least one item failed.
func (r *BatchResult[T]) Partial() bool {
	return r.FailureCount > 0
}

// runBatch applies op to every input sequentially, in order. A single item's
// failure never aborts the batch: its error is recorded as
// "item <label>: <message>" and execution continues. Succeeded keeps input
// order restricted to successes.
func runBatch[I, O any](inputs []I, label func(index int, input I) string, op func(I) (O, error)) *BatchResult[O] {
	result := &BatchResult[O]{
		Succeeded: make([]O, 0, len(inputs)),
		Errors:    []string{},
	}

	for i, input := range inputs {
		out, err := op(input)
		if err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, fmt.Sprintf("item %s: %s", label(i, input), err.Error()))
			continue
		}
		result.Succeeded = append(result.Succeeded, out)
		result.SuccessCount++
	}

	return result
}
