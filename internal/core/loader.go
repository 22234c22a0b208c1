package core

// loader.go turns a source file into an immutable Dataset.
//
// The pipeline for each load is:
//  1. Stat the file (NotFound when missing, ParseFailure when too large)
//  2. Open the reader for the file's format and read the header
//  3. Check the required columns (Malformed when any is absent)
//  4. For each row: validate, drop rejected rows, normalize numeric columns
//  5. Publish nothing; the caller decides whether to replace the Dataset
//
// A load either produces a complete Dataset or fails. Cancellation is
// checked between rows.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxFileSize is used when LoaderConfig.MaxFileSize is zero.
const DefaultMaxFileSize = 100 << 20

// cancelCheckInterval is how many rows are read between context checks.
const cancelCheckInterval = 1024

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// MaxFileSize is the largest accepted source in bytes. Negative disables the limit.
	MaxFileSize int64

	// ArtistBlacklist replaces DefaultArtistBlacklist when non-nil.
	ArtistBlacklist []string
}

// Loader reads, filters and normalizes sources.
type Loader struct {
	validator   *Validator
	maxFileSize int64
	now         func() time.Time
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	limit := cfg.MaxFileSize
	switch {
	case limit == 0:
		limit = DefaultMaxFileSize
	case limit < 0:
		limit = 0
	}

	return &Loader{
		validator:   NewValidator(cfg.ArtistBlacklist),
		maxFileSize: limit,
		now:         time.Now,
	}
}

// Validator returns the validator applied to every row.
func (l *Loader) Validator() *Validator { return l.validator }

// Load reads path and returns the cleaned Dataset. Errors are *LoadError,
// except for context cancellation which is returned wrapped as is.
func (l *Loader) Load(ctx context.Context, path string) (*Dataset, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newLoadError(NotFound, path, err)
		}
		return nil, newLoadError(ParseFailure, path, err)
	}
	if info.IsDir() {
		return nil, newLoadError(NotFound, path, errors.New("path is a directory"))
	}
	if l.maxFileSize > 0 && info.Size() > l.maxFileSize {
		return nil, newLoadError(ParseFailure, path,
			fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), l.maxFileSize))
	}

	slog.Debug("loading dataset", "path", path, "format", DetectFormat(path), "size_bytes", info.Size())

	src, err := openSource(path, l.maxFileSize)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newLoadError(NotFound, path, err)
		}
		return nil, newLoadError(ParseFailure, path, err)
	}
	defer src.Close()

	header := NewHeader(src.Header())
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, newLoadError(Malformed, path,
			fmt.Errorf("missing required column %s", strings.Join(missing, ", ")))
	}

	ds, err := l.build(ctx, path, header, src)
	if err != nil {
		return nil, err
	}

	slog.Info("dataset loaded",
		"path", path,
		"dataset_id", ds.ID,
		"rows", ds.Len(),
		"columns", header.Len(),
		"removed", ds.Removed.Total(),
		"removed_charset", ds.Removed.Charset,
		"removed_blacklist", ds.Removed.Blacklist,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return ds, nil
}

// build consumes every row of src.
func (l *Loader) build(ctx context.Context, path string, header *Header, src rowSource) (*Dataset, error) {
	var metricIdx [metricCount]int
	for m := Metric(0); m < metricCount; m++ {
		i, ok := header.Index(m.Column())
		if !ok {
			i = -1
		}
		metricIdx[m] = i
	}

	var (
		tracks  []Track
		removed RemovalStats
	)

	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}

		cells, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newLoadError(ParseFailure, path, fmt.Errorf("row %d: %w", n+2, err))
		}

		cells = fitRow(cells, header.Len())
		raw := NewRawRow(header, cells)

		switch l.validator.Check(raw) {
		case RejectedCharset:
			removed.Charset++
			continue
		case RejectedBlacklist:
			removed.Blacklist++
			continue
		}

		tracks = append(tracks, newTrack(raw, cells, &metricIdx))
	}

	return &Dataset{
		ID:       uuid.NewString(),
		Source:   path,
		LoadedAt: l.now(),
		Removed:  removed,
		header:   header,
		tracks:   tracks,
	}, nil
}

// newTrack normalizes the numeric columns present in the source and stores
// the normalized values back into the row's cells.
func newTrack(raw RawRow, cells []Cell, metricIdx *[metricCount]int) Track {
	t := Track{
		Name:   raw.Get(ColTrack),
		Artist: raw.Get(ColArtist),
		Album:  raw.Get(ColAlbumName),
		cells:  cells,
	}
	for m, i := range metricIdx {
		if i < 0 {
			continue
		}
		v := Normalize(cells[i])
		t.metrics[m] = v
		cells[i] = NumberCell(v)
	}
	return t
}

// fitRow pads short rows with Null and drops cells beyond the header.
func fitRow(cells []Cell, width int) []Cell {
	switch {
	case len(cells) == width:
		return cells
	case len(cells) > width:
		return cells[:width:width]
	default:
		out := make([]Cell, width)
		copy(out, cells)
		return out
	}
}

func missingColumns(h *Header) []string {
	var missing []string
	for _, col := range RequiredColumns {
		if !h.Has(col) {
			missing = append(missing, col)
		}
	}
	return missing
}
