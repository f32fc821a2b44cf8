package scenario

import "fmt"

// SeqRange is an inclusive run of operation sequence numbers applied as one batch.
type SeqRange struct {
	From uint64
	To   uint64
}

// SplitRange cuts [from, to] into consecutive batches. Every batch but the last holds
// exactly batchSize sequence numbers.
func SplitRange(from, to, batchSize uint64) ([]SeqRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("scenario: batch size must be positive")
	}
	if to < from {
		return nil, fmt.Errorf("scenario: sequence range %d..%d is empty", from, to)
	}

	ranges := make([]SeqRange, 0, (to-from)/batchSize+1)
	for lo := from; ; lo += batchSize {
		if to-lo < batchSize {
			return append(ranges, SeqRange{From: lo, To: to}), nil
		}
		ranges = append(ranges, SeqRange{From: lo, To: lo + batchSize - 1})
	}
}
