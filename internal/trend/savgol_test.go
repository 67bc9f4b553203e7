package trend

import (
	"testing"
)

func TestFit_CentreWeights(t *testing.T) {
	cases := []struct {
		window, order int
		num           []float64
		den           float64
	}{
		{5, 2, []float64{-3, 12, 17, 12, -3}, 35},
		{5, 3, []float64{-3, 12, 17, 12, -3}, 35},
		{7, 2, []float64{-2, 3, 6, 7, 6, 3, -2}, 21},
		{9, 4, []float64{15, -55, 30, 135, 179, 135, 30, -55, 15}, 429},
		{3, 0, []float64{1, 1, 1}, 3},
	}
	for _, tc := range cases {
		f, err := newFit(make([]float64, tc.window), tc.window, tc.order)
		if err != nil {
			t.Fatalf("window=%d order=%d: %v", tc.window, tc.order, err)
		}
		if len(f.centre) != tc.window {
			t.Fatalf("window=%d: %d centre weights", tc.window, len(f.centre))
		}
		for j, c := range tc.num {
			assertClose(t, "centre weight", f.centre[j], c/tc.den, 1e-12)
		}
	}
}

func TestFit_EdgesReproduceConstant(t *testing.T) {
	for _, w := range []int{1, 3, 5, 11, 31} {
		for order := 0; order < w && order <= 6; order++ {
			ones := make([]float64, w)
			for i := range ones {
				ones[i] = 1
			}
			f, err := newFit(ones, w, order)
			if err != nil {
				t.Fatalf("w=%d order=%d: %v", w, order, err)
			}
			var sum float64
			for _, c := range f.centre {
				sum += c
			}
			assertClose(t, "centre sum", sum, 1, 1e-10)
			for i := 0; i < w; i++ {
				assertClose(t, "head", f.eval(f.head, i), 1, 1e-10)
				assertClose(t, "tail", f.eval(f.tail, i), 1, 1e-10)
			}
		}
	}
}

func TestFilter_WindowSpansSeries(t *testing.T) {
	const n = 20001
	y := make([]float64, n)
	for i := range y {
		x := float64(i) / 1000
		y[i] = 3 + 0.5*x - 0.25*x*x
	}
	got, err := Filter(y, Params{WindowLength: n, PolyOrder: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != n {
		t.Fatalf("len=%d, want %d", len(got), n)
	}
	for _, i := range []int{0, 1, n / 4, n / 2, n - 2, n - 1} {
		assertClose(t, "quadratic", got[i], y[i], 1e-6)
	}

	noisy := noisySine(n, 500, 0.3, 5)
	smoothed, err := Filter(noisy, Params{WindowLength: n - 1, PolyOrder: 3})
	if err != nil {
		t.Fatalf("noisy: %v", err)
	}
	if len(smoothed) != n {
		t.Errorf("noisy len=%d", len(smoothed))
	}
}

func TestSmooth_ParallelMatchesSequential(t *testing.T) {
	y := noisySine(5000, 100, 0.4, 11)

	seq, err := smooth(y, 21, 3)
	if err != nil {
		t.Fatal(err)
	}

	saved := ParallelThreshold
	ParallelThreshold = 64
	defer func() { ParallelThreshold = saved }()

	par, err := smooth(y, 21, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(par) != len(seq) {
		t.Fatalf("len: %d vs %d", len(par), len(seq))
	}
	for i := range seq {
		if par[i] != seq[i] {
			t.Fatalf("index %d: parallel %v, sequential %v", i, par[i], seq[i])
		}
	}
}

func BenchmarkFilter_100k(b *testing.B) {
	y := noisySine(100000, 500, 0.3, 1)
	p := Params{WindowLength: 51, PolyOrder: 3}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Filter(y, p); err != nil {
			b.Fatal(err)
		}
	}
}
