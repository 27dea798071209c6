package dtype

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()
	cases := map[string]DType{
		"i32":     I32,
		"int32":   I32,
		"F32":     F32,
		" f64 ":   F64,
		"float64": F64,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := Parse("f16"); err == nil {
		t.Fatal("expected error for f16")
	}
}

func TestRound(t *testing.T) {
	t.Parallel()
	if got := I32.Round(2.9); got != 2 {
		t.Fatalf("I32.Round(2.9) = %v", got)
	}
	if got := I32.Round(-2.9); got != -2 {
		t.Fatalf("I32.Round(-2.9) = %v", got)
	}
	v := 0.1
	if got := F32.Round(v); got == v || got != float64(float32(v)) {
		t.Fatalf("F32.Round(0.1) = %v", got)
	}
	if got := F64.Round(v); got != v {
		t.Fatalf("F64.Round(0.1) = %v", got)
	}
}

func TestSizesAndTolerances(t *testing.T) {
	t.Parallel()
	if I32.Size() != 4 || F32.Size() != 4 || F64.Size() != 8 {
		t.Fatal("unexpected dtype sizes")
	}
	if F32.Tolerance() != 5e-5 || F64.Tolerance() != 1e-12 {
		t.Fatal("unexpected polar tolerances")
	}
	if F32.Epsilon() <= F64.Epsilon() {
		t.Fatal("f32 epsilon should exceed f64 epsilon")
	}
}

func TestTextRoundTrip(t *testing.T) {
	t.Parallel()
	b, err := F32.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var dt DType
	if err := dt.UnmarshalText(b); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if dt != F32 {
		t.Fatalf("got %v", dt)
	}
	if _, err := Invalid.MarshalText(); err == nil {
		t.Fatal("expected error for invalid dtype")
	}
}
