package apitype

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatClassOf(t *testing.T) {
	a := assert.New(t)

	a.Equal(FormatStandard, FormatClassOf("/photos/image.jpg"))
	a.Equal(FormatStandard, FormatClassOf("/photos/image.JPEG"))
	a.Equal(FormatStandard, FormatClassOf("image.webp"))
	a.Equal(FormatRaw, FormatClassOf("/photos/image.NEF"))
	a.Equal(FormatRaw, FormatClassOf("image.cr3"))
	a.Equal(FormatUnsupported, FormatClassOf("notes.txt"))
	a.Equal(FormatUnsupported, FormatClassOf("no-extension"))
	a.True(IsRaw("a.dng"))
	a.False(IsSupported("a.xmp"))
}

func TestImageFile(t *testing.T) {
	a := assert.New(t)
	path := filepath.Join("photos", "2024", "image.arw")

	imageFile := NewImageFile(path)

	a.Equal(path, imageFile.GetPath())
	a.Equal(filepath.Join("photos", "2024"), imageFile.GetDir())
	a.Equal("image.arw", imageFile.GetFile())
	a.True(imageFile.IsRaw())
	a.Equal(FormatRaw, imageFile.GetFormatClass())
}

func TestImageFile_GetOrientation(t *testing.T) {
	t.Run("Given orientation is kept", func(t *testing.T) {
		a := assert.New(t)
		imageFile := NewImageFileWithOrientation(filepath.Join(t.TempDir(), "image.jpg"), Orientation(6))
		a.Equal(Orientation(6), imageFile.GetOrientation())
	})
	t.Run("Missing file is normal", func(t *testing.T) {
		a := assert.New(t)
		imageFile := NewImageFile(filepath.Join(t.TempDir(), "image.jpg"))
		a.Equal(OrientationNormal, imageFile.GetOrientation())
	})
}

func TestSize(t *testing.T) {
	a := assert.New(t)

	a.Equal(3000, SizeOf(3000, 2000).LongEdge())
	a.Equal(3000, SizeOf(2000, 3000).LongEdge())
	a.True(SizeOf(0, 10).IsZero())
	a.False(SizeOf(1, 1).IsZero())
	a.InDelta(0.8, SizeOf(4800, 3200).LongEdgeRatio(SizeOf(6000, 4000)), 0.0001)
	a.Equal(0.0, SizeOf(10, 10).LongEdgeRatio(Size{}))
	a.Equal(SizeOf(4, 3), SizeOfRectangle(image.Rect(1, 1, 5, 4)))
}

func TestExifOrientationToAngleAndFlip(t *testing.T) {
	tests := []struct {
		orientation Orientation
		angle       float64
		flipped     bool
	}{
		{1, 0, false},
		{2, 0, true},
		{3, 180, false},
		{4, 180, true},
		{5, 270, true},
		{6, 270, false},
		{7, 90, true},
		{8, 90, false},
		{0, 0, false},
		{9, 0, false},
	}
	for _, test := range tests {
		a := assert.New(t)
		angle, flipped := ExifOrientationToAngleAndFlip(test.orientation)
		a.Equal(test.angle, angle, "orientation %d", test.orientation)
		a.Equal(test.flipped, flipped, "orientation %d", test.orientation)
	}
}

func newMarkedImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func TestOrientImage(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}

	t.Run("Normal is unchanged", func(t *testing.T) {
		a := assert.New(t)
		img := newMarkedImage()
		a.Same(img, OrientImage(img, OrientationNormal))
	})
	t.Run("Flip", func(t *testing.T) {
		a := assert.New(t)
		oriented := OrientImage(newMarkedImage(), Orientation(2))
		a.Equal(40, oriented.Bounds().Dx())
		a.Equal(red, color.NRGBAModel.Convert(oriented.At(39, 0)))
	})
	t.Run("Upside down", func(t *testing.T) {
		a := assert.New(t)
		oriented := OrientImage(newMarkedImage(), Orientation(3))
		a.Equal(40, oriented.Bounds().Dx())
		a.Equal(red, color.NRGBAModel.Convert(oriented.At(39, 19)))
	})
	t.Run("Rotated swaps dimensions", func(t *testing.T) {
		a := assert.New(t)
		for _, orientation := range []Orientation{5, 6, 7, 8} {
			oriented := OrientImage(newMarkedImage(), orientation)
			a.True(orientation.SwapsDimensions())
			a.Equal(20, oriented.Bounds().Dx())
			a.Equal(40, oriented.Bounds().Dy())
		}
		a.False(Orientation(3).SwapsDimensions())
	})
	t.Run("Nil", func(t *testing.T) {
		a := assert.New(t)
		a.Nil(OrientImage(nil, Orientation(6)))
	})
}

func TestPlaceholder(t *testing.T) {
	a := assert.New(t)

	a.True(IsPlaceholder(Placeholder))
	a.True(IsPlaceholder(nil))
	a.True(IsPlaceholder(image.NewRGBA(image.Rect(0, 0, 0, 10))))
	a.False(IsPlaceholder(image.NewRGBA(image.Rect(0, 0, 1, 1))))
}

func TestStringToQualityMode(t *testing.T) {
	a := assert.New(t)

	a.Equal(QualityUltraFast, StringToQualityMode("ultra_fast"))
	a.Equal(QualityFast, StringToQualityMode(" FAST "))
	a.Equal(QualityHigh, StringToQualityMode("high_quality"))
	a.Equal(QualityUltra, StringToQualityMode("ultra_quality"))
	a.Equal(QualityModeNotKnown, StringToQualityMode("best"))
	a.False(QualityModeNotKnown.IsValid())
	a.Equal("use_preview", RawUsePreview.String())
	a.Equal("use_decode", RawUseDecode.String())
}

func TestPriority(t *testing.T) {
	a := assert.New(t)

	a.Equal(PriorityHigh, StringToPriority("HIGH"))
	a.Equal(PriorityMedium, StringToPriority("medium"))
	a.Equal(PriorityLow, StringToPriority("whatever"))
	a.False(Priority(5).IsValid())
	a.Equal([]Priority{PriorityHigh, PriorityMedium, PriorityLow}, Priorities)
}
