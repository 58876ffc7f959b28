package shm

import (
	"reflect"
	"testing"
)

func TestCandidateNames(t *testing.T) {
	cases := []struct {
		name string
		want []string
	}{
		{"sandbox", []string{"sandbox", "/sandbox"}},
		{"/sandbox", []string{"/sandbox", "sandbox"}},
		{"//sandbox", []string{"//sandbox", "sandbox"}},
	}
	for _, c := range cases {
		got := candidateNames(c.name)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("candidateNames(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSlabRingSplit(t *testing.T) {
	s := &Slab{mem: make([]byte, 100)}
	if len(s.RingA()) != 50 || len(s.RingB()) != 50 {
		t.Fatalf("RingA/RingB lengths = %d/%d, want 50/50", len(s.RingA()), len(s.RingB()))
	}
	s.RingA()[0] = 1
	if s.mem[0] != 1 {
		t.Fatal("RingA should alias the underlying slab, not copy it")
	}
}
