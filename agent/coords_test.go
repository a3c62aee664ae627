package agent

import "testing"

func TestIsNormalized(t *testing.T) {
	cases := []struct {
		name          string
		width, height int
		x, y          int
		want          bool
	}{
		{"typical phone", 1920, 1080, 500, 500, true},
		{"portrait phone", 1080, 1920, 500, 500, true},
		{"out of range x", 1920, 1080, 1500, 500, false},
		{"negative y", 1920, 1080, 500, -1, false},
		{"upper bound inclusive", 1080, 1920, 1000, 1000, true},
		{"origin", 1080, 1920, 0, 0, true},
		{"small screen ambiguous", 800, 600, 500, 500, false},
		{"unknown geometry", 0, 0, 500, 500, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewCoordinateNormalizer(tc.width, tc.height)
			if got := n.IsNormalized(tc.x, tc.y); got != tc.want {
				t.Fatalf("IsNormalized(%d, %d) on %dx%d = %v, want %v",
					tc.x, tc.y, tc.width, tc.height, got, tc.want)
			}
		})
	}
}

func TestToPixels(t *testing.T) {
	n := NewCoordinateNormalizer(1920, 1080)
	x, y := n.ToPixels(500, 500)
	if x != 960 || y != 540 {
		t.Fatalf("ToPixels(500, 500) = (%d, %d), want (960, 540)", x, y)
	}

	x, y = n.ToPixels(1000, 0)
	if x != 1920 || y != 0 {
		t.Fatalf("ToPixels(1000, 0) = (%d, %d), want (1920, 0)", x, y)
	}
}

func TestNilNormalizerPassesThrough(t *testing.T) {
	var n *CoordinateNormalizer
	if n.IsNormalized(500, 500) {
		t.Fatal("nil normalizer must never claim a coordinate is normalized")
	}
}
