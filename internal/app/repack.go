package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/ossyrian/kdzparse/internal/binutil"
	"github.com/ossyrian/kdzparse/internal/config"
	"github.com/ossyrian/kdzparse/internal/dz"
	"github.com/ossyrian/kdzparse/internal/kdz"
	"github.com/ossyrian/kdzparse/internal/metadata"
	"github.com/ossyrian/kdzparse/internal/pipeline"
	"github.com/ossyrian/kdzparse/internal/sp"
)

// imageFileSet lazily opens each "<hw>.<name>.img" file on first read and
// keeps it open for the rest of the repack, since a partition's chunks are
// each read exactly once but in whatever order the worker pool schedules
// them in.
type imageFileSet struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

func newImageFileSet(dir string) *imageFileSet {
	return &imageFileSet{dir: dir, files: make(map[string]*os.File)}
}

func (s *imageFileSet) get(hwPartition uint32, name string) (*os.File, error) {
	key := fmt.Sprintf("%d.%s", hwPartition, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[key]; ok {
		return f, nil
	}
	f, err := os.Open(filepath.Join(s.dir, key+".img"))
	if err != nil {
		return nil, fmt.Errorf("app: open partition image %q: %w", key, err)
	}
	s.files[key] = f
	return f, nil
}

func (s *imageFileSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		f.Close()
	}
}

// read pulls the exact bytes for one chunk task out of its partition image,
// at the same sector offset the chunk was originally extracted to.
func (s *imageFileSet) read(task dz.ChunkTask) ([]byte, error) {
	f, err := s.get(task.HwPartition, task.PartName)
	if err != nil {
		return nil, err
	}

	base := binutil.SectorOffset(task.Chunk.PartStartSector)
	offset := binutil.SectorOffset(task.Chunk.StartSector) - base

	buf := make([]byte, task.Chunk.DataSize)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("app: read chunk %q from %s.%s.img: %w", task.Chunk.Name, strconv.FormatUint(uint64(task.HwPartition), 10), task.PartName, err)
	}
	return buf, nil
}

// Repack reads a directory produced by Extract (metadata.json, partition
// images, components/) and rebuilds a KDZ file from it.
func Repack(cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	docBytes, err := os.ReadFile(filepath.Join(cfg.InputFile, "metadata.json"))
	if err != nil {
		return fmt.Errorf("app: read metadata.json: %w", err)
	}
	var doc metadata.Document
	if err := json.Unmarshal(docBytes, &doc); err != nil {
		return fmt.Errorf("app: parse metadata.json: %w", err)
	}

	dzBytes, err := buildDzArchive(&doc.Dz, cfg.InputFile, logger)
	if err != nil {
		return err
	}

	kdzHdr := &kdz.Header{
		Version:      doc.Kdz.Version,
		Magic:        doc.Kdz.Magic,
		Size:         doc.Kdz.Size,
		Tag:          doc.Kdz.Tag,
		FtmModelName: doc.Kdz.FtmModelName,
	}
	for _, r := range doc.Kdz.Records {
		kdzHdr.Records = append(kdzHdr.Records, kdz.Record{Name: r.Name, Size: r.Size, Offset: r.Offset})
	}

	secMagic, secFlags, secSig, secFlat, err := doc.SecurePartition.ToSecurePartitionInputs()
	if err != nil {
		return err
	}
	var spData []byte
	if doc.SecurePartition != nil {
		spData, err = sp.Build(secMagic, secFlags, secSig, secFlat)
		if err != nil {
			return fmt.Errorf("app: build secure partition: %w", err)
		}
	}

	componentsDir := filepath.Join(cfg.InputFile, "components")
	components := func(name string) ([]byte, bool, error) {
		fileName := name
		for _, entry := range additionalRecordFiles {
			if entry.key == name {
				fileName = entry.file
				break
			}
		}
		data, err := os.ReadFile(filepath.Join(componentsDir, fileName))
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("app: read component %q: %w", name, err)
		}
		return data, true, nil
	}

	out, err := os.Create(cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("app: create output file: %w", err)
	}
	defer out.Close()

	if err := kdz.Build(out, kdzHdr, dzBytes, spData, components, logger); err != nil {
		return fmt.Errorf("app: build kdz file: %w", err)
	}

	logger.Info("repack complete", "output", cfg.OutputFile)
	return nil
}

func buildDzArchive(section *metadata.DzSection, inputDir string, logger *slog.Logger) ([]byte, error) {
	meta, err := section.ToBuildMeta()
	if err != nil {
		return nil, err
	}
	tasks, err := section.ChunkTasks()
	if err != nil {
		return nil, err
	}

	images := newImageFileSet(inputDir)
	defer images.closeAll()

	maxGoroutines := pipeline.DefaultPoolSize(runtime.NumCPU())
	isV0 := meta.Minor == 0

	headers, data, err := pipeline.CompressChunks(tasks, isV0, meta.Compression, images.read, maxGoroutines, logger)
	if err != nil {
		return nil, fmt.Errorf("app: compress dz chunks: %w", err)
	}

	dzBytes, err := dz.Assemble(meta, headers, data)
	if err != nil {
		return nil, fmt.Errorf("app: assemble dz archive: %w", err)
	}
	return dzBytes, nil
}
