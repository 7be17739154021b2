package apitype

import "image"

// Placeholder is the empty bitmap handed out instead of a real image when
// decoding failed or an earlier decode of the same file is still running.
var Placeholder image.Image = image.NewRGBA(image.Rect(0, 0, 0, 0))

func IsPlaceholder(img image.Image) bool {
	return img == nil || img == Placeholder || img.Bounds().Empty()
}
