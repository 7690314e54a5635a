// Package report writes attribute statistics as parquet files.
package report

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/mrtstat/internal/stats"
)

// Section names used in file names.
const (
	SectionGroups = "groups"
	SectionTotals = "totals"
)

// Row is the on-disk schema of both report sections.
type Row struct {
	RunID   string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Kind    string  `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Section string  `parquet:"name=section, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Name    string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Count   int64   `parquet:"name=count, type=INT64"`
	Percent float64 `parquet:"name=percent, type=DOUBLE"`
}

// FileName is the base name of one section's file.
func FileName(runID, kind, section string) string {
	return fmt.Sprintf("%s_%s_%s.parquet", kind, section, runID)
}

// Write stores the groups and totals sections of counts under dir and
// returns the paths written.
func Write(dir, runID, kind string, counts *stats.AttributeCounts, logger *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir %s: %w", dir, err)
	}
	l := logger.With(slog.String("run_id", runID), slog.String("kind", kind))

	var paths []string
	var errs error
	for _, sec := range []struct {
		name string
		rows []stats.Row
	}{
		{SectionGroups, counts.GroupRows()},
		{SectionTotals, counts.TotalRows()},
	} {
		path := filepath.Join(dir, FileName(runID, kind, sec.name))
		if err := writeSection(path, runID, kind, sec.name, sec.rows); err != nil {
			l.Error("Failed to write report section", "path", path, "error", err)
			errs = errors.Join(errs, err)
			continue
		}
		l.Debug("Wrote report section", "path", path, slog.Int("rows", len(sec.rows)))
		paths = append(paths, path)
	}
	return paths, errs
}

func writeSection(path, runID, kind, section string, rows []stats.Row) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	defer func() {
		if closeErr := fw.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close file %s: %w", path, closeErr))
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		return fmt.Errorf("create writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		row := Row{
			RunID:   runID,
			Kind:    kind,
			Section: section,
			Name:    r.Name,
			Count:   int64(r.Count),
			Percent: r.Percent,
		}
		if err := pw.Write(row); err != nil {
			return errors.Join(fmt.Errorf("write row %s: %w", r.Name, err), pw.WriteStop())
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("stop writer %s: %w", path, err)
	}
	return nil
}
