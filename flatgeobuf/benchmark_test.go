package flatgeobuf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// generateLayer builds n random features of the given kind: "point" for
// named points, "zone" for circular polygons of 32 vertices.
func generateLayer(r *rand.Rand, n int, kind string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		x := -180 + r.Float64()*360
		y := -85 + r.Float64()*170

		var f *geojson.Feature
		switch kind {
		case "zone":
			radius := 0.01 + r.Float64()*0.05
			ring := make(orb.Ring, 33)
			for j := 0; j < 32; j++ {
				angle := 2 * math.Pi * float64(j) / 32
				ring[j] = orb.Point{x + radius*math.Cos(angle), y + radius*math.Sin(angle)}
			}
			ring[32] = ring[0]
			f = geojson.NewFeature(orb.Polygon{ring})
		default:
			f = geojson.NewFeature(orb.Point{x, y})
			f.Properties["name"] = fmt.Sprintf("Feature %d", i)
		}
		fc.Append(f)
	}
	return fc
}

func TestSizeComparison(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, kind := range []string{"point", "zone"} {
		fc := generateLayer(r, 1000, kind)

		geo, err := json.Marshal(fc)
		if err != nil {
			t.Fatal(err)
		}
		var fgb bytes.Buffer
		if err := WriteFeatures(&fgb, fc, nil); err != nil {
			t.Fatal(err)
		}

		t.Logf("%s: geojson %d bytes, flatgeobuf %d bytes (%.1f%%)",
			kind, len(geo), fgb.Len(), 100*float64(fgb.Len())/float64(len(geo)))
		if kind == "zone" && fgb.Len() >= len(geo) {
			t.Errorf("%s: expected flatgeobuf smaller than geojson", kind)
		}
	}
}

func benchmarkWrite(b *testing.B, kind string, n int, index bool) {
	fc := generateLayer(rand.New(rand.NewSource(42)), n, kind)
	opts := &Options{IncludeIndex: index, CRS: WGS84()}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := WriteFeatures(&buf, fc, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkRead(b *testing.B, kind string, n int, index bool) {
	fc := generateLayer(rand.New(rand.NewSource(42)), n, kind)
	var buf bytes.Buffer
	if err := WriteFeatures(&buf, fc, &Options{IncludeIndex: index}); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		reader, err := NewReaderFromData(data)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := reader.ReadAll(); err != nil {
			b.Fatal(err)
		}
		_ = reader.Close()
	}
}

func BenchmarkWrite_Points_1000(b *testing.B)        { benchmarkWrite(b, "point", 1000, true) }
func BenchmarkWrite_PointsNoIndex_1000(b *testing.B) { benchmarkWrite(b, "point", 1000, false) }
func BenchmarkWrite_Zones_1000(b *testing.B)         { benchmarkWrite(b, "zone", 1000, true) }
func BenchmarkRead_Points_1000(b *testing.B)         { benchmarkRead(b, "point", 1000, true) }
func BenchmarkRead_PointsNoIndex_1000(b *testing.B)  { benchmarkRead(b, "point", 1000, false) }
func BenchmarkRead_Zones_1000(b *testing.B)          { benchmarkRead(b, "zone", 1000, true) }

func BenchmarkSearch_Points_10000(b *testing.B) {
	fc := generateLayer(rand.New(rand.NewSource(42)), 10000, "point")
	var buf bytes.Buffer
	if err := WriteFeatures(&buf, fc, nil); err != nil {
		b.Fatal(err)
	}
	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		b.Fatal(err)
	}
	query := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := reader.Search(query); err != nil {
			b.Fatal(err)
		}
	}
}
