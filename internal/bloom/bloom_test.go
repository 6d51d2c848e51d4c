package bloom

import "testing"

func TestAddedKeysAreContained(t *testing.T) {
	f := New(1000, 0.01)
	keys := []uint64{1, 2, 3, 42, 1000000, 0xdeadbeef}
	for _, k := range keys {
		f.Add(k)
	}
	for _, k := range keys {
		if !f.Contains(k) {
			t.Fatalf("Contains(%d) = false after Add", k)
		}
	}
}

func TestFalsePositiveRateIsBounded(t *testing.T) {
	f := New(1000, 0.01)
	for i := uint64(0); i < 1000; i++ {
		f.Add(i * 7919)
	}

	falsePositives := 0
	const trials = 5000
	for i := uint64(0); i < trials; i++ {
		probe := i*104729 + 1 // disjoint from the added set
		if f.Contains(probe) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	if rate > 0.1 {
		t.Fatalf("false positive rate = %v, want well under 10%%", rate)
	}
}

func TestResetClearsMembership(t *testing.T) {
	f := New(100, 0.01)
	f.Add(5)
	f.Reset()
	// Reset zeroes every bit, so the key added before it is no longer
	// reported, and the filter stays usable for further Adds.
	if f.Contains(5) {
		t.Fatal("Contains(5) = true after Reset")
	}
	f.Add(9)
	if !f.Contains(9) {
		t.Fatal("Contains(9) = false after Add following Reset")
	}
}
