package agent

// coordinateScale is the upper bound of the model's normalized coordinate
// space: the model addresses the screen as a 0-1000 grid on both axes.
const coordinateScale = 1000

// CoordinateNormalizer maps model-space coordinates onto device pixels.
// A zero-size screen disables detection, so coordinates pass through
// untouched when the display geometry is not known yet.
type CoordinateNormalizer struct {
	width  int
	height int
}

// NewCoordinateNormalizer returns a normalizer for a screen of the given
// pixel dimensions.
func NewCoordinateNormalizer(width, height int) *CoordinateNormalizer {
	return &CoordinateNormalizer{width: width, height: height}
}

// IsNormalized reports whether (x, y) looks like a model-space coordinate:
// both components inside [0, 1000] on a screen with at least one dimension
// of 1000px or more. On smaller screens the two spaces overlap too much to
// tell apart, so detection stays off.
func (n *CoordinateNormalizer) IsNormalized(x, y int) bool {
	if n == nil || n.width <= 0 || n.height <= 0 {
		return false
	}
	if x < 0 || x > coordinateScale || y < 0 || y > coordinateScale {
		return false
	}
	return n.width >= coordinateScale || n.height >= coordinateScale
}

// ToPixels scales a model-space coordinate to device pixels.
func (n *CoordinateNormalizer) ToPixels(x, y int) (int, int) {
	return x * n.width / coordinateScale, y * n.height / coordinateScale
}
