package store_test

import (
	"math"
	"testing"

	"github.com/m-mizutani/engram/pkg/store"
	"github.com/m-mizutani/gt"
)

func TestCosineSimilarity(t *testing.T) {
	cases := map[string]struct {
		a, b []float32
		want float64
	}{
		"identical":       {[]float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		"scaled":          {[]float32{1, 0}, []float32{5, 0}, 1},
		"orthogonal":      {[]float32{1, 0}, []float32{0, 1}, 0},
		"opposite":        {[]float32{1, 0}, []float32{-1, 0}, -1},
		"length mismatch": {[]float32{1, 0}, []float32{1, 0, 0}, 0},
		"zero vector":     {[]float32{0, 0}, []float32{1, 0}, 0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := store.CosineSimilarity(tc.a, tc.b)
			gt.True(t, math.Abs(got-tc.want) < 1e-9)
		})
	}
}
