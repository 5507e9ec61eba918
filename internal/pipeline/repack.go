package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"github.com/ossyrian/kdzparse/internal/dz"
)

// ImageReader reads the decompressed bytes for one chunk out of its
// source partition image file.
type ImageReader func(task dz.ChunkTask) ([]byte, error)

type chunkResult struct {
	header []byte
	data   []byte
}

// CompressChunks reads and compresses every chunk task concurrently across
// maxGoroutines workers, then returns their headers and compressed data as
// parallel slices in task order — ready to hand to dz.Assemble.
func CompressChunks(tasks []dz.ChunkTask, isV0 bool, compression dz.Compression, readImage ImageReader, maxGoroutines int, logger *slog.Logger) (headers [][]byte, data [][]byte, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := pool.NewWithResults[chunkResult]().WithErrors().WithMaxGoroutines(maxGoroutines)
	for _, t := range tasks {
		task := t
		p.Go(func() (chunkResult, error) {
			logger.Debug("compressing chunk", "hw_partition", task.HwPartition, "partition", task.PartName, "chunk", task.Chunk.Name)

			decompressed, err := readImage(task)
			if err != nil {
				return chunkResult{}, fmt.Errorf("read image data for chunk %q: %w", task.Chunk.Name, err)
			}

			compressed, err := dz.Compress(compression, decompressed)
			if err != nil {
				return chunkResult{}, fmt.Errorf("compress chunk %q: %w", task.Chunk.Name, err)
			}

			header, err := dz.BuildChunkHeader(isV0, task, compressed)
			if err != nil {
				return chunkResult{}, fmt.Errorf("build header for chunk %q: %w", task.Chunk.Name, err)
			}

			return chunkResult{header: header, data: compressed}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: compressing chunks: %w", err)
	}

	headers = lo.Map(results, func(r chunkResult, _ int) []byte { return r.header })
	data = lo.Map(results, func(r chunkResult, _ int) []byte { return r.data })
	return headers, data, nil
}
