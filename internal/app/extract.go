// Package app wires the kdz, sp, dz, pipeline and metadata packages
// together into the two operations the CLI exposes: extract and repack.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ossyrian/kdzparse/internal/config"
	"github.com/ossyrian/kdzparse/internal/dz"
	"github.com/ossyrian/kdzparse/internal/kdz"
	"github.com/ossyrian/kdzparse/internal/metadata"
	"github.com/ossyrian/kdzparse/internal/ordered"
	"github.com/ossyrian/kdzparse/internal/pipeline"
	"github.com/ossyrian/kdzparse/internal/sp"
)

type dzPartMap = ordered.Map[[]dz.Chunk]

// additionalRecordFiles is the fixed V3 auxiliary-record name-to-filename
// mapping, in the order original_source/extractor.cpp writes them.
var additionalRecordFiles = []struct {
	key  string
	file string
}{
	{"suffix_map", "suffix_map.dat"},
	{"sku_map", "sku_map.dat"},
	{"extended_sku_map", "extended_sku_map.dat"},
	{"extended_mem_id", "extended_mem_id.dat"},
}

// Extract reads a KDZ file and either prints a listing (DestDir empty, or
// DryRun) or writes metadata.json, per-partition .img files, and component
// files into cfg.DestDir.
func Extract(cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.Open(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("app: open kdz file: %w", err)
	}
	defer file.Close()

	kdzHdr, err := kdz.ParseHeader(file, logger)
	if err != nil {
		return fmt.Errorf("app: parse kdz header: %w", err)
	}

	secPart, ok := sp.Parse(file, logger)
	if !ok {
		logger.Info("no secure partition found")
		secPart = nil
	}

	dzRecord, err := findDzRecord(kdzHdr)
	if err != nil {
		return err
	}
	if _, err := file.Seek(int64(dzRecord.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("app: seek to dz record: %w", err)
	}

	dzHdr, err := dz.ParseHeader(file, !cfg.NoVerify, logger)
	if err != nil {
		return fmt.Errorf("app: parse dz header: %w", err)
	}

	doc := metadata.Build(kdzHdr, secPart, dzHdr)

	if cfg.DestDir == "" || cfg.DryRun {
		printListing(os.Stdout, kdzHdr, secPart, dzHdr)
		return nil
	}

	if err := os.MkdirAll(cfg.DestDir, 0o755); err != nil {
		return fmt.Errorf("app: create dest dir: %w", err)
	}

	if err := extractPartitions(file, dzHdr, cfg.DestDir, logger); err != nil {
		return err
	}
	if err := extractComponents(file, kdzHdr, cfg.DestDir, logger); err != nil {
		return err
	}

	docBytes, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("app: marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DestDir, "metadata.json"), docBytes, 0o644); err != nil {
		return fmt.Errorf("app: write metadata.json: %w", err)
	}

	logger.Info("extraction complete", "dest", cfg.DestDir)
	return nil
}

func findDzRecord(hdr *kdz.Header) (kdz.Record, error) {
	for _, r := range hdr.Records {
		if strings.Contains(r.Name, ".dz") {
			return r, nil
		}
	}
	return kdz.Record{}, fmt.Errorf("app: no .dz record found in kdz header")
}

func extractPartitions(file *os.File, dzHdr *dz.Header, destDir string, logger *slog.Logger) error {
	maxGoroutines := pipeline.DefaultPoolSize(runtime.NumCPU())

	var extractErr error
	dzHdr.Parts.Range(func(hwKey string, names *dzPartMap) {
		if extractErr != nil {
			return
		}
		names.Range(func(name string, chunks []dz.Chunk) {
			if extractErr != nil {
				return
			}

			outPath := filepath.Join(destDir, fmt.Sprintf("%s.%s.img", hwKey, name))
			out, err := os.Create(outPath)
			if err != nil {
				extractErr = fmt.Errorf("app: create partition image %q: %w", outPath, err)
				return
			}
			defer out.Close()

			n, err := pipeline.ExtractPartition(file, dzHdr.Compression, chunks, out, maxGoroutines, logger)
			if err != nil {
				extractErr = fmt.Errorf("app: extract partition %q: %w", outPath, err)
				return
			}
			logger.Info("extracted partition", "hw_partition", hwKey, "name", name, "bytes", n)
		})
	})
	return extractErr
}

func extractComponents(file *os.File, kdzHdr *kdz.Header, destDir string, logger *slog.Logger) error {
	componentsDir := filepath.Join(destDir, "components")
	if err := os.MkdirAll(componentsDir, 0o755); err != nil {
		return fmt.Errorf("app: create components dir: %w", err)
	}

	for _, rec := range kdzHdr.Records {
		if strings.Contains(rec.Name, ".dz") || rec.Size == 0 {
			continue
		}
		if err := copyRange(file, componentsDir, rec.Name, int64(rec.Offset), int64(rec.Size)); err != nil {
			return err
		}
		logger.Info("extracted component", "name", rec.Name, "size", rec.Size)
	}

	if kdzHdr.Version != 3 {
		return nil
	}

	additional := map[string]kdz.AdditionalRecord{
		"suffix_map":       kdzHdr.SuffixMap,
		"sku_map":          kdzHdr.SkuMap,
		"extended_sku_map": kdzHdr.ExtendedSkuMap,
		"extended_mem_id":  kdzHdr.ExtendedMemID,
	}
	for _, entry := range additionalRecordFiles {
		rec := additional[entry.key]
		if rec.Size == 0 {
			continue
		}
		if err := copyRange(file, componentsDir, entry.file, int64(rec.Offset), int64(rec.Size)); err != nil {
			return err
		}
		logger.Info("extracted v3 additional record", "key", entry.key, "size", rec.Size)
	}
	return nil
}

func copyRange(file *os.File, dir, name string, offset, size int64) error {
	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("app: create component %q: %w", name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, io.NewSectionReader(file, offset, size)); err != nil {
		return fmt.Errorf("app: copy component %q: %w", name, err)
	}
	return nil
}

func printListing(w io.Writer, kdzHdr *kdz.Header, secPart *sp.Table, dzHdr *dz.Header) {
	fmt.Fprintf(w, "KDZ version %d, magic 0x%08x, size %d\n", kdzHdr.Version, kdzHdr.Magic, kdzHdr.Size)
	for _, r := range kdzHdr.Records {
		fmt.Fprintf(w, "  record %-20s offset=%-10d size=%d\n", r.Name, r.Offset, r.Size)
	}
	if kdzHdr.Version == 3 {
		fmt.Fprintf(w, "  tag=%s ftm_model_name=%s\n", kdzHdr.Tag, kdzHdr.FtmModelName)
	}

	if secPart != nil {
		fmt.Fprintf(w, "Secure Partition: flags=0x%08x parts=%d\n", secPart.Flags, secPart.PartCount)
	} else {
		fmt.Fprintln(w, "Secure Partition: none")
	}

	fmt.Fprintf(w, "DZ %d.%d model=%s sw_version=%s compression=%s parts=%d\n",
		dzHdr.Major, dzHdr.Minor, dzHdr.ModelName, dzHdr.SwVersion, dzHdr.Compression, dzHdr.PartCount)
	dzHdr.Parts.Range(func(hwKey string, names *dzPartMap) {
		names.Range(func(name string, chunks []dz.Chunk) {
			var total uint64
			for _, c := range chunks {
				total += uint64(c.DataSize)
			}
			fmt.Fprintf(w, "  hw_partition=%s partition=%-20s chunks=%-4d bytes=%d\n", hwKey, name, len(chunks), total)
			for _, c := range chunks {
				fmt.Fprintf(w, "    %-16s data_size=%-10d sparse=%-5t ubi=%-5t start_sector=%d sector_count=%d\n",
					c.Name, c.DataSize, c.IsSparse, c.IsUbiImage, c.StartSector, c.SectorCount)
			}
		})
	})
}

