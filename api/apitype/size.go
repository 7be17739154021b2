package apitype

import "image"

type Size struct {
	width  int
	height int
}

func SizeOf(width int, height int) Size {
	return Size{width, height}
}

func SizeOfRectangle(rectangle image.Rectangle) Size {
	return Size{width: rectangle.Dx(), height: rectangle.Dy()}
}

func (s Size) GetWidth() int {
	return s.width
}

func (s Size) GetHeight() int {
	return s.height
}

func (s Size) LongEdge() int {
	if s.width > s.height {
		return s.width
	}
	return s.height
}

func (s Size) IsZero() bool {
	return s.width <= 0 || s.height <= 0
}

// LongEdgeRatio returns how large s is compared to other measured by the long edge.
// Returns 0 if other is empty.
func (s Size) LongEdgeRatio(other Size) float64 {
	if other.LongEdge() <= 0 {
		return 0
	}
	return float64(s.LongEdge()) / float64(other.LongEdge())
}
