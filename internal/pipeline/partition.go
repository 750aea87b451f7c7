package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Partition splits entries into batches of batchSize in order. The
// final batch may be smaller. batchSize must be positive.
func Partition(entries []model.BatchEntry, batchSize int) ([][]model.BatchEntry, error) {
	if batchSize <= 0 {
		return nil, eris.Wrapf(config.ErrInvalidConfig, "pipeline: batch size %d", batchSize)
	}

	var batches [][]model.BatchEntry
	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batches = append(batches, entries[start:end])
	}
	return batches, nil
}
