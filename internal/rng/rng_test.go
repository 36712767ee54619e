package rng

import (
	"sync"
	"testing"
)

type fixedSource struct{ f float64 }

func (s fixedSource) Float64() float64 { return s.f }
func (s fixedSource) Intn(n int) int   { return 0 }

func TestWeightedIndex(t *testing.T) {
	weights := []float64{1, 3, 6}

	tests := []struct {
		roll float64
		want int
	}{
		{0.0, 0},
		{0.05, 0},
		{0.15, 1},
		{0.39, 1},
		{0.41, 2},
		{0.99, 2},
	}
	for _, tt := range tests {
		if got := WeightedIndex(fixedSource{tt.roll}, weights); got != tt.want {
			t.Errorf("roll %.2f: index = %d, want %d", tt.roll, got, tt.want)
		}
	}
}

func TestWeightedIndexEdgeCases(t *testing.T) {
	if got := WeightedIndex(fixedSource{0.5}, nil); got != -1 {
		t.Errorf("empty weights: index = %d, want -1", got)
	}
	if got := WeightedIndex(fixedSource{0.999}, []float64{1}); got != 0 {
		t.Errorf("single weight: index = %d, want 0", got)
	}
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a := NewSeeded(1)
	b := NewSeeded(1)
	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() {
			t.Fatal("same seed diverged")
		}
		if a.Intn(10) != b.Intn(10) {
			t.Fatal("same seed diverged on Intn")
		}
	}
}

func TestSourceIsConcurrencySafe(t *testing.T) {
	src := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if v := src.Float64(); v < 0 || v >= 1 {
					t.Errorf("Float64 out of range: %v", v)
					return
				}
				_ = src.Intn(5)
			}
		}()
	}
	wg.Wait()
}
