package apitype

import (
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"vincit.fi/image-viewer/common/logger"
)

// Orientation is the EXIF orientation tag value (1-8)
type Orientation uint8

const OrientationNormal = Orientation(1)

const (
	noRotate  = 0
	rotate180 = 180
	left90    = 90
	right90   = 270

	noHorizontalFlip = false
	horizontalFlip   = true
)

func ExifOrientationToAngleAndFlip(orientation Orientation) (float64, bool) {
	switch orientation {
	case 1:
		return noRotate, noHorizontalFlip
	case 2:
		return noRotate, horizontalFlip
	case 3:
		return rotate180, noHorizontalFlip
	case 4:
		return rotate180, horizontalFlip
	case 5:
		return right90, horizontalFlip
	case 6:
		return right90, noHorizontalFlip
	case 7:
		return left90, horizontalFlip
	case 8:
		return left90, noHorizontalFlip
	default:
		return noRotate, noHorizontalFlip
	}
}

// SwapsDimensions tells if applying the orientation turns width into height
func (s Orientation) SwapsDimensions() bool {
	return s >= 5 && s <= 8
}

func ExifRotateImage(loadedImage image.Image, rotation float64, flipped bool) image.Image {
	if rotation != noRotate {
		loadedImage = imaging.Rotate(loadedImage, rotation, color.Black)
	}
	if flipped {
		return imaging.FlipH(loadedImage)
	}
	return loadedImage
}

func OrientImage(loadedImage image.Image, orientation Orientation) image.Image {
	if loadedImage == nil || orientation == OrientationNormal {
		return loadedImage
	}
	rotation, flipped := ExifOrientationToAngleAndFlip(orientation)
	return ExifRotateImage(loadedImage, rotation, flipped)
}

func LoadExifOrientation(path string) Orientation {
	file, err := os.Open(path)
	if err != nil {
		logger.Debug.Printf("Could not open '%s' for EXIF: %s", path, err)
		return OrientationNormal
	}
	defer file.Close()

	decodedExif, err := exif.Decode(file)
	if err != nil {
		logger.Trace.Printf("No EXIF data in '%s': %s", path, err)
		return OrientationNormal
	}
	return OrientationFromExif(decodedExif)
}

func OrientationFromExif(decodedExif *exif.Exif) Orientation {
	if orientation, err := GetInt(decodedExif, exif.Orientation); err != nil {
		return OrientationNormal
	} else if orientation < 1 || orientation > 8 {
		logger.Warn.Printf("Invalid EXIF orientation %d", orientation)
		return OrientationNormal
	} else {
		return Orientation(orientation)
	}
}

func GetInt(decodedExif *exif.Exif, tagName exif.FieldName) (int, error) {
	if tag, err := decodedExif.Get(tagName); err != nil {
		return 0, err
	} else {
		return tag.Int(0)
	}
}

// GetFirstInt returns the value of the first tag that exists and is an integer
func GetFirstInt(decodedExif *exif.Exif, tagNames ...exif.FieldName) (int, bool) {
	for _, tagName := range tagNames {
		if tag, err := decodedExif.Get(tagName); err == nil && tag.Format() == tiff.IntVal {
			if value, err := tag.Int(0); err == nil && value > 0 {
				return value, true
			}
		}
	}
	return 0, false
}
