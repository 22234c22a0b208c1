package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// ============================================================================
// Normalization Benchmarks
// ============================================================================

// BenchmarkNormalize benchmarks the metric normalizer across cell shapes.
// This is a hot path during load: every metric cell of every kept row.
func BenchmarkNormalize(b *testing.B) {
	cells := []Cell{
		TextCell("390,470,936"),
		TextCell("  1,234  "),
		TextCell("not a number"),
		NumberCell(123456),
		Null(),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, c := range cells {
			Normalize(c)
		}
	}
}

// BenchmarkNormalize_Simple benchmarks the most common case: a plain number.
func BenchmarkNormalize_Simple(b *testing.B) {
	c := NumberCell(601309283)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(c)
	}
}

// BenchmarkNormalize_Separators benchmarks thousands-separated text.
func BenchmarkNormalize_Separators(b *testing.B) {
	c := TextCell("4,281,468,720")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(c)
	}
}

// ============================================================================
// Validation Benchmarks
// ============================================================================

func BenchmarkValidatorCheck(b *testing.B) {
	header := NewHeader(spotifyHeader)
	rows := []RawRow{
		NewRawRow(header, benchRow(0)),
		NewRawRow(header, []Cell{TextCell("Canción"), TextCell("Artista"), Null(), Null(), Null(), Null()}),
		NewRawRow(header, []Cell{TextCell("Lullaby"), TextCell("MUSIC LAB JPN"), Null(), Null(), Null(), Null()}),
	}
	v := NewValidator(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, r := range rows {
			v.Check(r)
		}
	}
}

// ============================================================================
// Loader Benchmarks
// ============================================================================

func BenchmarkLoadCSV(b *testing.B) {
	path := writeBenchCSV(b, 1000)
	loader := NewLoader(LoaderConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.Load(ctx, path); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLoadCSV_Large(b *testing.B) {
	path := writeBenchCSV(b, 20000)
	loader := NewLoader(LoaderConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.Load(ctx, path); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStripBOM_LargeFile benchmarks the BOM-skipping reader on a large stream.
func BenchmarkStripBOM_LargeFile(b *testing.B) {
	data := append([]byte("\xEF\xBB\xBF"), bytes.Repeat([]byte("Track,Artist,Spotify Streams\n"), 10000)...)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := io.Copy(io.Discard, NewBOMSkippingReader(bytes.NewReader(data))); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Aggregation Benchmarks
// ============================================================================

func BenchmarkTopArtists(b *testing.B) {
	ds := benchDataset(b, 20000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ds.TopArtists(DefaultTopArtists)
	}
}

func BenchmarkPlatformComparison(b *testing.B) {
	ds := benchDataset(b, 20000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ds.PlatformComparison()
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

// BenchmarkTopArtistsParallel checks that concurrent readers of one
// snapshot do not contend.
func BenchmarkTopArtistsParallel(b *testing.B) {
	e := engineWith(benchDataset(b, 5000))
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := e.TopArtists(DefaultTopArtists); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkNormalizeParallel(b *testing.B) {
	c := TextCell("390,470,936")
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			Normalize(c)
		}
	})
}

// ============================================================================
// Memory Allocation Benchmarks
// ============================================================================

func BenchmarkNormalizeAllocs(b *testing.B) {
	c := TextCell("1,234,567")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(c)
	}
}

// ============================================================================
// Helpers
// ============================================================================

// benchRow returns a row over spotifyHeader. Artists repeat every 50 rows.
func benchRow(i int) []Cell {
	return []Cell{
		TextCell("Track " + strconv.Itoa(i)),
		TextCell("Artist " + strconv.Itoa(i%50)),
		TextCell("Album"),
		TextCell(strconv.Itoa(1_000_000 + i*37)),
		NumberCell(float64(i % 300)),
		TextCell(strconv.Itoa(i * 11)),
	}
}

func benchDataset(b *testing.B, n int) *Dataset {
	b.Helper()
	rows := make([][]Cell, n)
	for i := range rows {
		rows[i] = benchRow(i)
	}
	src := &sliceSource{header: spotifyHeader, rows: rows}
	ds, err := NewLoader(LoaderConfig{}).build(context.Background(), "memory", NewHeader(spotifyHeader), src)
	if err != nil {
		b.Fatalf("build dataset: %v", err)
	}
	return ds
}

func writeBenchCSV(b *testing.B, n int) string {
	b.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(spotifyHeader)
	for i := 0; i < n; i++ {
		cells := benchRow(i)
		record := make([]string, len(cells))
		for j, c := range cells {
			record[j] = strings.TrimSpace(c.String())
		}
		_ = w.Write(record)
	}
	w.Flush()

	path := filepath.Join(b.TempDir(), "bench.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		b.Fatal(err)
	}
	return path
}
