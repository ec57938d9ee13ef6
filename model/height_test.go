package model

import (
	"math"
	"strconv"
	"testing"
)

func TestParseHeight(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"4.50", 4.50},
		{"4.5m", 4.5},
		{" 5.10 m ", 5.10},
		{"4,40", 4.40},
		{"14'6", (14*12 + 6) * 0.0254},
		{"14'6\"", (14*12 + 6) * 0.0254},
		{"14'", 14 * 12 * 0.0254},
		{"15ft 2in", (15*12 + 2) * 0.0254},
		{"", 0},
		{"high", 0},
		{"-3", 0},
		{"x'6", 0},
	}
	for _, c := range cases {
		got := ParseHeight(c.in)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("ParseHeight(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFormatHeightRoundTrip(t *testing.T) {
	for cm := 0; cm <= 650; cm += 7 {
		m := float64(cm) / 100
		back := ParseHeight(FormatHeight(m))
		if math.Abs(back-m) > 0.005 {
			t.Errorf("round trip of %v gave %v", m, back)
		}
	}
}

func TestFeetInchesFormula(t *testing.T) {
	for feet := 8; feet <= 19; feet++ {
		for inches := 0; inches < 12; inches++ {
			want := float64(feet*12+inches) * 0.0254
			withQuote := ParseHeight(strconv.Itoa(feet) + "'" + strconv.Itoa(inches) + "\"")
			without := ParseHeight(strconv.Itoa(feet) + "'" + strconv.Itoa(inches))
			if math.Abs(withQuote-want) > 1e-9 || math.Abs(without-want) > 1e-9 {
				t.Fatalf("%d'%d parsed to %v / %v, want %v", feet, inches, withQuote, without, want)
			}
		}
	}
}
