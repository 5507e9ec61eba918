package pipeline

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/ossyrian/kdzparse/internal/binutil"
	"github.com/ossyrian/kdzparse/internal/dz"
)

// ExtractPartition reconstructs one partition image: every chunk is
// decompressed concurrently across maxGoroutines workers, then written out
// strictly in chunk order with sparse zero-fill wherever StartSector jumps
// ahead of the data written so far. Returns the number of bytes written.
//
// source must support concurrent ReadAt calls at independent offsets — an
// *os.File does, via pread, which is what lets every worker read its own
// chunk without a shared file cursor or per-worker file handle.
func ExtractPartition(source io.ReaderAt, compression dz.Compression, chunks []dz.Chunk, out io.Writer, maxGoroutines int, logger *slog.Logger) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := pool.NewWithResults[[]byte]().WithErrors().WithMaxGoroutines(maxGoroutines)
	for _, c := range chunks {
		chunk := c
		p.Go(func() ([]byte, error) {
			compressed := make([]byte, chunk.FileSize)
			if _, err := source.ReadAt(compressed, int64(chunk.FileOffset)); err != nil {
				return nil, fmt.Errorf("read chunk %q: %w", chunk.Name, err)
			}
			decompressed, err := dz.Decompress(compression, compressed, chunk.DataSize)
			if err != nil {
				return nil, fmt.Errorf("decompress chunk %q: %w", chunk.Name, err)
			}
			return decompressed, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return 0, fmt.Errorf("pipeline: decompressing partition: %w", err)
	}

	fill := make([]byte, binutil.SectorSize*100)
	writeFill := func(current, target int64) (int64, error) {
		for current < target {
			n := target - current
			if n > int64(len(fill)) {
				n = int64(len(fill))
			}
			if _, err := out.Write(fill[:n]); err != nil {
				return current, err
			}
			current += n
		}
		return current, nil
	}

	startOffset := binutil.SectorOffset(chunks[0].PartStartSector)
	current := startOffset

	for i, chunk := range chunks {
		logger.Debug("extracting chunk", "name", chunk.Name, "bytes", len(results[i]))

		expected := binutil.SectorOffset(chunk.StartSector)
		var padErr error
		if current, padErr = writeFill(current, expected); padErr != nil {
			return 0, fmt.Errorf("pipeline: write sparse padding: %w", padErr)
		}

		if _, err := out.Write(results[i]); err != nil {
			return 0, fmt.Errorf("pipeline: write chunk %q: %w", chunk.Name, err)
		}
		current += int64(len(results[i]))
	}

	last := chunks[len(chunks)-1]
	finalExpected := binutil.SectorOffset(last.StartSector) + binutil.SectorSpan(last.SectorCount)
	var padErr error
	if current, padErr = writeFill(current, finalExpected); padErr != nil {
		return 0, fmt.Errorf("pipeline: write final padding: %w", padErr)
	}

	return current - startOffset, nil
}
