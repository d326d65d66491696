package curriculum

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestFromResetParameters(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]float64
		want    Params
		wantErr bool
	}{
		{name: "empty uses defaults", in: nil, want: Params{HiveRadius: 6, UseRadius: true}},
		{name: "both keys", in: map[string]float64{"hive_radius": 2.5, "use_radius": 0}, want: Params{HiveRadius: 2.5}},
		{name: "radius only", in: map[string]float64{"hive_radius": 1}, want: Params{HiveRadius: 1, UseRadius: true}},
		{name: "unknown key ignored", in: map[string]float64{"gravity": 9.8}, want: Default()},
		{name: "negative radius", in: map[string]float64{"hive_radius": -1}, wantErr: true},
		{name: "nan radius", in: map[string]float64{"hive_radius": math.NaN()}, wantErr: true},
		{name: "use_radius not a flag", in: map[string]float64{"use_radius": 0.5}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromResetParameters(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Fatalf("got %v want ErrInvalidParams", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestResetParametersRoundTrip(t *testing.T) {
	p := Params{HiveRadius: 3, UseRadius: false}
	got, err := FromResetParameters(p.ResetParameters())
	if err != nil || got != p {
		t.Fatalf("got %+v, %v want %+v", got, err, p)
	}
}

func TestInRange(t *testing.T) {
	p := Params{HiveRadius: 5, UseRadius: true}
	if !p.InRange(4) || !p.InRange(5) || p.InRange(6) {
		t.Fatalf("radius 5: in(4)=%v in(5)=%v in(6)=%v", p.InRange(4), p.InRange(5), p.InRange(6))
	}
	p.UseRadius = false
	if p.InRange(0) {
		t.Fatalf("disabled radius still in range")
	}
}

func TestBoard(t *testing.T) {
	b := NewBoard(Default())
	if err := b.Set(Params{HiveRadius: -2}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("set invalid: got %v", err)
	}
	if b.Version() != 0 || b.Current() != Default() {
		t.Fatalf("invalid set changed the board")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Set(Params{HiveRadius: float64(i), UseRadius: true})
			_ = b.Current()
		}(i)
	}
	wg.Wait()
	if b.Version() != 8 {
		t.Fatalf("version: got %d want 8", b.Version())
	}
}
