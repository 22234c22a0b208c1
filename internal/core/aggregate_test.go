package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"testing"
)

// sliceSource serves in-memory rows through the loader pipeline.
type sliceSource struct {
	header []string
	rows   [][]Cell
}

func (s *sliceSource) Header() []string { return s.header }

func (s *sliceSource) Next() ([]Cell, error) {
	if len(s.rows) == 0 {
		return nil, io.EOF
	}
	r := s.rows[0]
	s.rows = s.rows[1:]
	return r, nil
}

func (s *sliceSource) Close() error { return nil }

func buildDataset(t *testing.T, header []string, rows ...[]Cell) *Dataset {
	t.Helper()
	src := &sliceSource{header: header, rows: rows}
	ds, err := NewLoader(LoaderConfig{}).build(context.Background(), "memory", NewHeader(header), src)
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return ds
}

func engineWith(ds *Dataset) *Engine {
	r := NewRegistry()
	r.Replace(ds)
	return NewEngine(r)
}

var spotifyHeader = []string{ColTrack, ColArtist, ColAlbumName, ColSpotifyStreams, ColSpotifyPlaylistCount, ColSpotifyPlaylistReach}

func TestEngine_UnavailableBeforeLoad(t *testing.T) {
	e := NewEngine(NewRegistry())

	checks := map[string]func() error{
		"TracksView":         func() error { _, err := e.TracksView(); return err },
		"TopArtists":         func() error { _, err := e.TopArtists(3); return err },
		"PlatformComparison": func() error { _, err := e.PlatformComparison(); return err },
		"DebugInfo":          func() error { _, err := e.DebugInfo(); return err },
		"Records":            func() error { _, err := e.Records(); return err },
		"Summary":            func() error { _, err := e.Summary(); return err },
	}
	for name, call := range checks {
		if err := call(); !errors.Is(err, ErrDataUnavailable) {
			t.Errorf("%s() error = %v, want ErrDataUnavailable", name, err)
		}
	}
}

func TestTopArtists(t *testing.T) {
	ds := buildDataset(t, spotifyHeader,
		[]Cell{TextCell("a1"), TextCell("A"), TextCell("x"), TextCell("100"), TextCell("1"), TextCell("10")},
		[]Cell{TextCell("a2"), TextCell("A"), TextCell("x"), TextCell("200"), TextCell("2"), TextCell("20")},
		[]Cell{TextCell("b1"), TextCell("B"), TextCell("x"), TextCell("50"), TextCell("5"), TextCell("50")},
		[]Cell{TextCell("c1"), TextCell("C"), TextCell("x"), TextCell("300"), TextCell("3"), TextCell("30")},
	)

	got, err := engineWith(ds).TopArtists(3)
	if err != nil {
		t.Fatalf("TopArtists() error = %v", err)
	}

	want := []ArtistAggregate{
		{Artist: "A", SpotifyStreams: 300, SpotifyPlaylistCount: 3, SpotifyPlaylistReach: 30},
		{Artist: "C", SpotifyStreams: 300, SpotifyPlaylistCount: 3, SpotifyPlaylistReach: 30},
		{Artist: "B", SpotifyStreams: 50, SpotifyPlaylistCount: 5, SpotifyPlaylistReach: 50},
	}
	if len(got) != len(want) {
		t.Fatalf("TopArtists() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopArtists()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTopArtists_Truncation(t *testing.T) {
	var rows [][]Cell
	for i := 0; i < 15; i++ {
		artist := string(rune('A' + i))
		rows = append(rows, []Cell{TextCell("t"), TextCell(artist), TextCell("x"), NumberCell(float64(i)), Null(), Null()})
	}
	ds := buildDataset(t, spotifyHeader, rows...)

	tests := []struct {
		k    int
		want int
	}{
		{k: 0, want: DefaultTopArtists},
		{k: -1, want: DefaultTopArtists},
		{k: 1, want: 1},
		{k: 5, want: 5},
		{k: 100, want: 15},
	}
	for _, tt := range tests {
		got := ds.TopArtists(tt.k)
		if len(got) != tt.want {
			t.Errorf("TopArtists(%d) returned %d artists, want %d", tt.k, len(got), tt.want)
		}
	}

	if top := ds.TopArtists(1); top[0].Artist != "O" || top[0].SpotifyStreams != 14 {
		t.Errorf("TopArtists(1) = %+v, want O with 14 streams", top[0])
	}
}

func TestTopArtists_SkipsMissingArtist(t *testing.T) {
	ds := buildDataset(t, spotifyHeader,
		[]Cell{TextCell("t"), Null(), TextCell("x"), TextCell("1,000,000"), Null(), Null()},
		[]Cell{TextCell("t"), TextCell("Known"), TextCell("x"), TextCell("5"), Null(), Null()},
	)

	got := ds.TopArtists(10)
	if len(got) != 1 || got[0].Artist != "Known" {
		t.Errorf("TopArtists() = %+v, want only Known", got)
	}
}

func TestTopArtists_EmptyDatasetEncodesAsArray(t *testing.T) {
	ds := buildDataset(t, spotifyHeader)

	b, err := json.Marshal(ds.TopArtists(10))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[]" {
		t.Errorf("Marshal = %s, want []", b)
	}
}

func TestPlatformComparison(t *testing.T) {
	header := []string{ColTrack, ColArtist, ColAlbumName, ColSpotifyStreams, ColYouTubeViews}
	ds := buildDataset(t, header,
		[]Cell{TextCell("a"), TextCell("x"), TextCell("y"), TextCell("10"), TextCell("1")},
		[]Cell{TextCell("b"), TextCell("x"), TextCell("y"), TextCell("20"), TextCell("2")},
		[]Cell{TextCell("c"), TextCell("x"), TextCell("y"), TextCell("30"), TextCell("100")},
	)

	got, err := engineWith(ds).PlatformComparison()
	if err != nil {
		t.Fatalf("PlatformComparison() error = %v", err)
	}

	spotify, ok := got.Get("Spotify")
	if !ok {
		t.Fatal("Spotify missing")
	}
	if spotify != (PlatformStats{Total: 60, Average: 20, Median: 20}) {
		t.Errorf("Spotify = %+v, want total 60, average 20, median 20", spotify)
	}

	youtube, _ := got.Get("YouTube")
	if youtube.Median != 2 || youtube.Total != 103 {
		t.Errorf("YouTube = %+v", youtube)
	}

	if _, ok := got.Get("TikTok"); ok {
		t.Error("TikTok present although its column is absent")
	}

	b, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"Spotify":{"total":60,"average":20,"median":20},"YouTube":{"total":103,"average":34.333333333333336,"median":2}}`
	if string(b) != want {
		t.Errorf("Marshal = %s\nwant      %s", b, want)
	}
}

func TestPlatformComparison_KeyOrder(t *testing.T) {
	header := []string{ColTikTokViews, ColYouTubeViews, ColSpotifyStreams, ColTrack, ColArtist, ColAlbumName}
	ds := buildDataset(t, header, []Cell{TextCell("1"), TextCell("2"), TextCell("3"), TextCell("t"), TextCell("a"), TextCell("b")})

	b, err := json.Marshal(ds.PlatformComparison())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"Spotify":{"total":3,"average":3,"median":3},"YouTube":{"total":2,"average":2,"median":2},"TikTok":{"total":1,"average":1,"median":1}}`
	if string(b) != want {
		t.Errorf("Marshal = %s\nwant      %s", b, want)
	}
}

func TestPlatformComparison_EmptyDataset(t *testing.T) {
	ds := buildDataset(t, []string{ColTrack, ColArtist, ColAlbumName, ColSpotifyStreams})

	stats, ok := ds.PlatformComparison().Get("Spotify")
	if !ok {
		t.Fatal("Spotify missing from empty dataset")
	}
	if stats != (PlatformStats{}) {
		t.Errorf("empty stats = %+v, want zeros", stats)
	}
	if math.IsNaN(stats.Average) {
		t.Error("average is NaN")
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{in: nil, want: 0},
		{in: []float64{5}, want: 5},
		{in: []float64{3, 1, 2}, want: 2},
		{in: []float64{4, 1, 3, 2}, want: 2.5},
		{in: []float64{0, 0, 10}, want: 0},
	}
	for _, tt := range tests {
		if got := median(append([]float64(nil), tt.in...)); got != tt.want {
			t.Errorf("median(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTracksView(t *testing.T) {
	ds := buildDataset(t, spotifyHeader,
		[]Cell{TextCell("Espresso"), TextCell("Sabrina Carpenter"), TextCell("x"), TextCell("1,234,567"), TextCell("12"), Null()},
		[]Cell{TextCell("Untitled"), Null(), TextCell("x"), TextCell("oops"), Null(), TextCell("7")},
	)

	view, err := engineWith(ds).TracksView()
	if err != nil {
		t.Fatalf("TracksView() error = %v", err)
	}
	if view.Total != 2 || len(view.Data) != 2 {
		t.Fatalf("TracksView() total = %d, len = %d", view.Total, len(view.Data))
	}

	b, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"total":2,"data":[` +
		`{"Track":"Espresso","Artist":"Sabrina Carpenter","Spotify Streams":1234567,"Spotify Playlist Count":12,"Spotify Playlist Reach":0},` +
		`{"Track":"Untitled","Artist":null,"Spotify Streams":0,"Spotify Playlist Count":0,"Spotify Playlist Reach":7}]}`
	if string(b) != want {
		t.Errorf("Marshal = %s\nwant      %s", b, want)
	}
}

func TestDebugInfo(t *testing.T) {
	ds, err := NewLoader(LoaderConfig{}).Load(context.Background(), fixtureTracks)
	if err != nil {
		t.Fatal(err)
	}

	info, err := engineWith(ds).DebugInfo()
	if err != nil {
		t.Fatalf("DebugInfo() error = %v", err)
	}

	if info.Status != "success" {
		t.Errorf("Status = %q", info.Status)
	}
	if info.Shape != "[7, 13]" {
		t.Errorf("Shape = %q, want [7, 13]", info.Shape)
	}
	if len(info.Columns) != 13 {
		t.Errorf("len(Columns) = %d, want 13", len(info.Columns))
	}
	if len(info.SampleData) != 3 {
		t.Fatalf("len(SampleData) = %d, want 3", len(info.SampleData))
	}
	if got := info.SampleData[2].Get(ColTrack).String(); got != "i like the way you kiss me" {
		t.Errorf("third sample track = %q", got)
	}

	b, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("DebugInfo JSON is invalid: %v", err)
	}
	sample := decoded["sample_data"].([]any)[0].(map[string]any)
	if sample["Spotify Streams"] != float64(390470936) {
		t.Errorf("sample Spotify Streams = %v", sample["Spotify Streams"])
	}
	if sample["ISRC"] != "QM24S2402528" {
		t.Errorf("sample ISRC = %v", sample["ISRC"])
	}
}

func TestDebugInfo_SmallDataset(t *testing.T) {
	ds := buildDataset(t, spotifyHeader, []Cell{TextCell("a"), TextCell("b"), TextCell("c"), Null(), Null(), Null()})
	if got := len(ds.DebugInfo().SampleData); got != 1 {
		t.Errorf("len(SampleData) = %d, want 1", got)
	}
}

func TestRecordsAndSummary(t *testing.T) {
	ds, err := NewLoader(LoaderConfig{}).Load(context.Background(), fixtureTracks)
	if err != nil {
		t.Fatal(err)
	}
	e := engineWith(ds)

	recs, err := e.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 7 {
		t.Errorf("len(Records()) = %d, want 7", len(recs))
	}
	if len(recs[0].Fields) != 13 || recs[0].Fields[0].Name != ColTrack {
		t.Errorf("first record fields = %+v", recs[0].Fields)
	}

	sum, err := e.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Rows != 7 || sum.Columns != 13 || sum.Removed.Total() != 3 || sum.ID != ds.ID {
		t.Errorf("Summary() = %+v", sum)
	}
}

func TestFixtureAggregates(t *testing.T) {
	ds, err := NewLoader(LoaderConfig{}).Load(context.Background(), fixtureTracks)
	if err != nil {
		t.Fatal(err)
	}

	spotify, _ := ds.PlatformComparison().Get("Spotify")
	if spotify.Total != 5024623847 {
		t.Errorf("Spotify total = %v, want 5024623847", spotify.Total)
	}
	if spotify.Median != 601309283 {
		t.Errorf("Spotify median = %v, want 601309283", spotify.Median)
	}

	top := ds.TopArtists(2)
	if top[0].Artist != "Miley Cyrus" || top[1].Artist != "Benson Boone" {
		t.Errorf("TopArtists(2) = %+v", top)
	}
}
