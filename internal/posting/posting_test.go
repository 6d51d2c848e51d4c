package posting

import "testing"

func TestBasicEncodeDecodeRoundTrip(t *testing.T) {
	in := Basic{Value: 0xdeadbeef, Score: 3.5}
	buf := make([]byte, BasicSize)
	in.Encode(buf)
	out := DecodeBasic(buf)
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestCountedCombineSumsScoreAndCount(t *testing.T) {
	a := Counted{Value: 100, Score: 1.0, Count: 1}
	b := Counted{Value: 100, Score: 2.5, Count: 3}
	got := a.Combine(b)
	want := Counted{Value: 100, Score: 3.5, Count: 4}
	if got != want {
		t.Fatalf("Combine = %+v, want %+v", got, want)
	}
}

func TestLinkEncodeDecodeRoundTrip(t *testing.T) {
	in := Link{Value: 100, Score: 0.5, SourceDomain: 10}
	buf := make([]byte, LinkSize)
	in.Encode(buf)
	out := DecodeLink(buf)
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}
