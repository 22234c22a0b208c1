package core

// aggregate.go computes the read-only views served by the API.
//
// Every view is recomputed from the current Dataset on each call. The
// Engine takes one snapshot from the Registry per call, so a concurrent
// reload never mixes two datasets into one response.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DefaultTopArtists is used when TopArtists is called with k <= 0.
const DefaultTopArtists = 10

// sampleSize is the number of records included in DebugInfo.
const sampleSize = 3

// Engine answers queries against the Registry's current Dataset.
type Engine struct {
	registry *Registry
}

// NewEngine creates an Engine reading from r.
func NewEngine(r *Registry) *Engine {
	return &Engine{registry: r}
}

func (e *Engine) snapshot() (*Dataset, error) {
	ds, ok := e.registry.Current()
	if !ok {
		return nil, ErrDataUnavailable
	}
	return ds, nil
}

// ----------------------------------------------------------------------------
// Tracks
// ----------------------------------------------------------------------------

// TrackSummary is the per-track projection returned by the tracks view.
type TrackSummary struct {
	Track                Cell    `json:"Track"`
	Artist               Cell    `json:"Artist"`
	SpotifyStreams       float64 `json:"Spotify Streams"`
	SpotifyPlaylistCount float64 `json:"Spotify Playlist Count"`
	SpotifyPlaylistReach float64 `json:"Spotify Playlist Reach"`
}

// TracksView lists every record in Dataset order.
type TracksView struct {
	Total int            `json:"total"`
	Data  []TrackSummary `json:"data"`
}

// TracksView returns the per-track projection of the current Dataset.
func (e *Engine) TracksView() (TracksView, error) {
	ds, err := e.snapshot()
	if err != nil {
		return TracksView{}, err
	}
	return ds.TracksView(), nil
}

// TracksView returns the per-track projection of ds. Numeric fields are
// normalized again, which is a no-op for loader output.
func (d *Dataset) TracksView() TracksView {
	data := make([]TrackSummary, d.Len())
	for i := range d.tracks {
		t := &d.tracks[i]
		data[i] = TrackSummary{
			Track:                t.Name,
			Artist:               t.Artist,
			SpotifyStreams:       NormalizeValue(t.Metric(SpotifyStreams)),
			SpotifyPlaylistCount: NormalizeValue(t.Metric(SpotifyPlaylistCount)),
			SpotifyPlaylistReach: NormalizeValue(t.Metric(SpotifyPlaylistReach)),
		}
	}
	return TracksView{Total: len(data), Data: data}
}

// ----------------------------------------------------------------------------
// Top artists
// ----------------------------------------------------------------------------

// TopArtists groups the current Dataset by artist and returns the k artists
// with the most Spotify streams.
func (e *Engine) TopArtists(k int) ([]ArtistAggregate, error) {
	ds, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return ds.TopArtists(k), nil
}

// TopArtists sums the Spotify metrics per artist, sorts by streams
// descending with ties broken by artist name ascending, and keeps the first
// k (DefaultTopArtists when k <= 0). Records without an artist are skipped.
func (d *Dataset) TopArtists(k int) []ArtistAggregate {
	if k <= 0 {
		k = DefaultTopArtists
	}

	byArtist := make(map[string]int)
	var aggs []ArtistAggregate
	for i := range d.tracks {
		t := &d.tracks[i]
		if t.Artist.IsNull() {
			continue
		}
		name := t.Artist.String()

		idx, ok := byArtist[name]
		if !ok {
			idx = len(aggs)
			byArtist[name] = idx
			aggs = append(aggs, ArtistAggregate{Artist: name})
		}
		aggs[idx].SpotifyStreams += t.Metric(SpotifyStreams)
		aggs[idx].SpotifyPlaylistCount += t.Metric(SpotifyPlaylistCount)
		aggs[idx].SpotifyPlaylistReach += t.Metric(SpotifyPlaylistReach)
	}

	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].SpotifyStreams != aggs[j].SpotifyStreams {
			return aggs[i].SpotifyStreams > aggs[j].SpotifyStreams
		}
		return aggs[i].Artist < aggs[j].Artist
	})

	if len(aggs) > k {
		aggs = aggs[:k]
	}
	if aggs == nil {
		aggs = []ArtistAggregate{}
	}
	return aggs
}

// ----------------------------------------------------------------------------
// Platform comparison
// ----------------------------------------------------------------------------

// PlatformEntry is one platform's summary.
type PlatformEntry struct {
	Name  string
	Stats PlatformStats
}

// PlatformComparison holds the summaries of the platforms present in the
// source, in Platforms order.
type PlatformComparison struct {
	Entries []PlatformEntry
}

// Get returns the stats for a platform by name.
func (p PlatformComparison) Get(name string) (PlatformStats, bool) {
	for _, e := range p.Entries {
		if e.Name == name {
			return e.Stats, true
		}
	}
	return PlatformStats{}, false
}

// MarshalJSON encodes the comparison as an object keyed by platform name,
// keeping Platforms order.
func (p PlatformComparison) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Stats)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PlatformComparison summarizes each platform of the current Dataset.
func (e *Engine) PlatformComparison() (PlatformComparison, error) {
	ds, err := e.snapshot()
	if err != nil {
		return PlatformComparison{}, err
	}
	return ds.PlatformComparison(), nil
}

// PlatformComparison returns total, average and median of each platform's
// representative column. Platforms whose column is absent are omitted.
func (d *Dataset) PlatformComparison() PlatformComparison {
	var out PlatformComparison
	for _, p := range Platforms {
		if !d.HasColumn(p.Metric.Column()) {
			continue
		}
		out.Entries = append(out.Entries, PlatformEntry{
			Name:  p.Name,
			Stats: d.columnStats(p.Metric),
		})
	}
	return out
}

// columnStats computes the summary of one metric. An empty Dataset yields zeros.
func (d *Dataset) columnStats(m Metric) PlatformStats {
	n := len(d.tracks)
	if n == 0 {
		return PlatformStats{}
	}

	values := make([]float64, n)
	var total float64
	for i := range d.tracks {
		v := d.tracks[i].Metric(m)
		values[i] = v
		total += v
	}

	return PlatformStats{
		Total:   total,
		Average: total / float64(n),
		Median:  median(values),
	}
}

// median sorts values in place.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// ----------------------------------------------------------------------------
// Debug info and records
// ----------------------------------------------------------------------------

// DebugInfo describes the shape of the current Dataset.
type DebugInfo struct {
	Status     string   `json:"status"`
	Shape      string   `json:"shape"`
	Columns    []string `json:"columns"`
	SampleData []Record `json:"sample_data"`
}

// DebugInfo returns the shape, columns and first records of the current Dataset.
func (e *Engine) DebugInfo() (DebugInfo, error) {
	ds, err := e.snapshot()
	if err != nil {
		return DebugInfo{}, err
	}
	return ds.DebugInfo(), nil
}

// DebugInfo returns the shape, columns and first three records of ds.
func (d *Dataset) DebugInfo() DebugInfo {
	n := min(sampleSize, d.Len())
	sample := make([]Record, n)
	for i := 0; i < n; i++ {
		sample[i] = d.Record(i)
	}
	return DebugInfo{
		Status:     "success",
		Shape:      fmt.Sprintf("[%d, %d]", d.Len(), d.header.Len()),
		Columns:    d.Columns(),
		SampleData: sample,
	}
}

// Records returns every full record of the current Dataset.
func (e *Engine) Records() ([]Record, error) {
	ds, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return ds.Records(), nil
}

// Records returns every full record of ds in Dataset order.
func (d *Dataset) Records() []Record {
	out := make([]Record, d.Len())
	for i := range out {
		out[i] = d.Record(i)
	}
	return out
}

// ----------------------------------------------------------------------------
// Summary
// ----------------------------------------------------------------------------

// DatasetSummary is the provenance of a Dataset, used by the status page
// and reload notifications.
type DatasetSummary struct {
	ID       string       `json:"id"`
	Source   string       `json:"source"`
	LoadedAt time.Time    `json:"loaded_at"`
	Rows     int          `json:"rows"`
	Columns  int          `json:"columns"`
	Removed  RemovalStats `json:"removed"`
}

// Summary returns the provenance of the current Dataset.
func (e *Engine) Summary() (DatasetSummary, error) {
	ds, err := e.snapshot()
	if err != nil {
		return DatasetSummary{}, err
	}
	return ds.Summary(), nil
}

// Summary returns the provenance of ds.
func (d *Dataset) Summary() DatasetSummary {
	return DatasetSummary{
		ID:       d.ID,
		Source:   d.Source,
		LoadedAt: d.LoadedAt,
		Rows:     d.Len(),
		Columns:  d.header.Len(),
		Removed:  d.Removed,
	}
}
