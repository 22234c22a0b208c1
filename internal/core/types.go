package core

import (
	"strconv"
	"strings"
	"time"
)

// Column names the pipeline knows about. Source headers must match exactly.
const (
	ColTrack                = "Track"
	ColArtist               = "Artist"
	ColAlbumName            = "Album Name"
	ColSpotifyStreams       = "Spotify Streams"
	ColSpotifyPlaylistCount = "Spotify Playlist Count"
	ColSpotifyPlaylistReach = "Spotify Playlist Reach"
	ColYouTubeViews         = "YouTube Views"
	ColYouTubeLikes         = "YouTube Likes"
	ColTikTokViews          = "TikTok Views"
)

// RequiredColumns must be present in every source.
var RequiredColumns = []string{ColTrack, ColArtist, ColAlbumName}

// Metric identifies one of the numeric columns that the loader normalizes.
type Metric int

const (
	SpotifyStreams Metric = iota
	SpotifyPlaylistCount
	SpotifyPlaylistReach
	YouTubeViews
	YouTubeLikes
	TikTokViews

	metricCount
)

// NumericColumns lists the normalized columns, indexed by Metric.
var NumericColumns = [metricCount]string{
	ColSpotifyStreams,
	ColSpotifyPlaylistCount,
	ColSpotifyPlaylistReach,
	ColYouTubeViews,
	ColYouTubeLikes,
	ColTikTokViews,
}

// Column returns the source column name for the metric.
func (m Metric) Column() string {
	if m < 0 || m >= metricCount {
		return ""
	}
	return NumericColumns[m]
}

// Header maps column names to their position in a row. A nil Header has
// no columns.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader builds a Header from a source header row. Names are made
// unique so every column survives in JSON records: a blank name becomes
// "Unnamed: <i>" and a repeated name gets a ".1", ".2", ... suffix, skipping
// suffixes that are already taken.
func NewHeader(names []string) *Header {
	h := &Header{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	counts := make(map[string]int, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			n = "Unnamed: " + strconv.Itoa(i)
		}
		for c := counts[n]; c > 0; c = counts[n] {
			counts[n] = c + 1
			n = n + "." + strconv.Itoa(c)
		}
		counts[n]++
		h.names[i] = n
		h.index[n] = i
	}
	return h
}

// Names returns the column names in source order.
func (h *Header) Names() []string {
	if h == nil {
		return []string{}
	}
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len returns the number of columns.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.names)
}

// Index returns the position of a column.
func (h *Header) Index(name string) (int, bool) {
	if h == nil {
		return 0, false
	}
	i, ok := h.index[name]
	return i, ok
}

// Has reports whether the column is present.
func (h *Header) Has(name string) bool {
	_, ok := h.Index(name)
	return ok
}

// RawRow is one untyped source row. Cells beyond the row's length read as Null.
type RawRow struct {
	header *Header
	cells  []Cell
}

// NewRawRow pairs cells with a header.
func NewRawRow(header *Header, cells []Cell) RawRow {
	return RawRow{header: header, cells: cells}
}

// Get returns the cell for a column. Missing columns and short rows yield Null.
func (r RawRow) Get(name string) Cell {
	i, ok := r.header.Index(name)
	if !ok || i >= len(r.cells) {
		return Null()
	}
	return r.cells[i]
}

// Track is one cleaned row.
//
// Name, Artist and Album keep the source cells so a missing value stays
// distinguishable from an empty string.
type Track struct {
	Name   Cell
	Artist Cell
	Album  Cell

	metrics [metricCount]float64
	cells   []Cell
}

// Metric returns a normalized numeric field. Columns absent from the
// source read as 0.
func (t *Track) Metric(m Metric) float64 {
	if m < 0 || m >= metricCount {
		return 0
	}
	return t.metrics[m]
}

// Dataset is the cleaned, queryable collection. It is never mutated after
// the loader returns it.
type Dataset struct {
	ID       string
	Source   string
	LoadedAt time.Time

	// Removed counts source rows dropped by the validator.
	Removed RemovalStats

	header *Header
	tracks []Track
}

// RemovalStats breaks down rows dropped during a load.
type RemovalStats struct {
	Charset   int `json:"charset"`
	Blacklist int `json:"blacklist"`
}

// Total returns the combined number of removed rows.
func (s RemovalStats) Total() int { return s.Charset + s.Blacklist }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.tracks) }

// Columns returns the column names present in the source, in order.
func (d *Dataset) Columns() []string { return d.header.Names() }

// HasColumn reports whether the source had the column.
func (d *Dataset) HasColumn(name string) bool { return d.header.Has(name) }

// Track returns the i-th record. The returned pointer must not be modified.
func (d *Dataset) Track(i int) *Track { return &d.tracks[i] }

// Record returns the i-th record with every source column, in column order.
func (d *Dataset) Record(i int) Record {
	t := &d.tracks[i]
	fields := make([]RecordField, d.header.Len())
	for j, name := range d.header.Names() {
		c := Null()
		if j < len(t.cells) {
			c = t.cells[j]
		}
		fields[j] = RecordField{Name: name, Value: c}
	}
	return Record{Fields: fields}
}

// ArtistAggregate sums an artist's Spotify metrics across the dataset.
type ArtistAggregate struct {
	Artist               string  `json:"Artist"`
	SpotifyStreams       float64 `json:"Spotify Streams"`
	SpotifyPlaylistCount float64 `json:"Spotify Playlist Count"`
	SpotifyPlaylistReach float64 `json:"Spotify Playlist Reach"`
}

// PlatformStats summarizes one platform's representative column.
type PlatformStats struct {
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
}

// Platform pairs a platform name with the column that represents it.
type Platform struct {
	Name   string
	Metric Metric
}

// Platforms lists the compared platforms in response order.
var Platforms = []Platform{
	{Name: "Spotify", Metric: SpotifyStreams},
	{Name: "YouTube", Metric: YouTubeViews},
	{Name: "TikTok", Metric: TikTokViews},
}
