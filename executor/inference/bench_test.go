package inference

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
)

func benchEncoder(b *testing.B) *convert.MatrixEncoder {
	lists := map[game.Category][]int{
		game.CategoryAgent:    {0, 1, 2, 3},
		game.CategoryLandform: {0, 1, 2},
		game.CategoryBeing:    {0, 1},
		game.CategoryItem:     {0, 1, 2, 3, 4, 5},
		game.CategoryResource: {0, 1, 2},
	}
	ns, err := namespace.NewStrided(lists, 20, []game.Category{
		game.CategoryAgent, game.CategoryLandform, game.CategoryBeing, game.CategoryItem, game.CategoryResource,
	})
	if err != nil {
		b.Fatalf("namespace: %v", err)
	}
	enc, err := convert.NewMatrixEncoder(convert.Layout{
		Size:           game.MapSize{X: 16, Y: 16},
		BackpackSlots:  8,
		EquipmentSlots: 3,
		Synthesis:      []int{4, 5},
		Attributes:     []string{"Health", convert.VisionAttribute, convert.NightVisionAttribute},
	}, ns)
	if err != nil {
		b.Fatalf("encoder: %v", err)
	}
	return enc
}

func BenchmarkMatrixFlatten(b *testing.B) {
	enc := benchEncoder(b)
	rec := &game.Record{
		Env:        game.EnvInfo{Daytime: true},
		Position:   game.Point{X: 8, Y: 8},
		Attributes: []float32{100, 4, 2},
		Backpack:   []game.Slot{{Item: 1, Quantity: 2}},
		Equipment:  []int{-1, 3, -1},
		Agents:     []game.Sighting{{ID: 2, X: 9, Y: 8}},
		Items:      []game.Sighting{{ID: 4, X: 7, Y: 7}},
	}
	recs := make([]*game.Record, 32)
	for i := range recs {
		recs[i] = rec
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		obs, err := convert.EncodeBatch(context.Background(), enc, recs, nil, 4)
		if err != nil {
			b.Fatalf("encode: %v", err)
		}
		convert.PutFloatBuffer(convert.Flatten(obs))
	}
}

func BenchmarkOnnxPredict(b *testing.B) {
	modelPath := os.Getenv("EDEN_BENCH_ONNX_MODEL")
	if modelPath == "" {
		b.Skip("EDEN_BENCH_ONNX_MODEL not set; skipping")
	}
	if _, err := os.Stat(modelPath); err != nil {
		b.Skipf("model not found: %v", err)
	}

	disable := os.Getenv("EDEN_ORT_DISABLE_CUDA")
	space := MatrixSpace(benchEncoder(b))
	client, err := NewOnnxClient(modelPath, space, OnnxClientConfig{
		BatchSize:   128,
		DisableCUDA: disable != "" && disable != "0" && strings.ToLower(disable) != "false",
	})
	if err != nil {
		b.Skipf("onnx client: %v", err)
	}
	defer client.Close()

	input := make([]float32, space.InputLen())
	for i := range input {
		input[i] = float32(i%7) / 7.0
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, _, err := client.Predict(context.Background(), input); err != nil {
				b.Errorf("predict: %v", err)
				return
			}
		}
	})
	b.StopTimer()
	if dt := b.Elapsed().Seconds(); dt > 0 {
		b.ReportMetric(float64(b.N)/dt, "inf/s")
	}
	st := client.Stats()
	b.ReportMetric(st.AvgBatchSize, "batch")
}
