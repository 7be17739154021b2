package apitype

import (
	"path/filepath"
	"strings"
	"sync"
)

type FormatClass int

const (
	FormatUnsupported FormatClass = iota
	FormatStandard
	FormatRaw
)

func (s FormatClass) String() string {
	switch s {
	case FormatStandard:
		return "standard"
	case FormatRaw:
		return "raw"
	}
	return "unsupported"
}

var (
	standardFileEndings = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
		".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
	}
	rawFileEndings = map[string]bool{
		".3fr": true, ".arw": true, ".cr2": true, ".cr3": true, ".crw": true,
		".dcr": true, ".dng": true, ".erf": true, ".iiq": true, ".kdc": true,
		".mef": true, ".mos": true, ".nef": true, ".nrw": true, ".orf": true,
		".pef": true, ".raf": true, ".raw": true, ".rw2": true, ".rwl": true,
		".sr2": true, ".srf": true, ".srw": true, ".x3f": true,
	}
)

func FormatClassOf(path string) FormatClass {
	extension := strings.ToLower(filepath.Ext(path))
	if rawFileEndings[extension] {
		return FormatRaw
	} else if standardFileEndings[extension] {
		return FormatStandard
	} else {
		return FormatUnsupported
	}
}

func IsSupported(path string) bool {
	return FormatClassOf(path) != FormatUnsupported
}

func IsRaw(path string) bool {
	return FormatClassOf(path) == FormatRaw
}

// ImageFile is a handle to a single image on disk. The format class is
// fixed when the handle is created and the EXIF orientation is resolved
// at most once.
type ImageFile struct {
	directory   string
	filename    string
	path        string
	formatClass FormatClass

	orientationOnce sync.Once
	orientation     Orientation
}

func NewImageFile(path string) *ImageFile {
	return &ImageFile{
		directory:   filepath.Dir(path),
		filename:    filepath.Base(path),
		path:        path,
		formatClass: FormatClassOf(path),
	}
}

func NewImageFileWithOrientation(path string, orientation Orientation) *ImageFile {
	imageFile := NewImageFile(path)
	imageFile.orientationOnce.Do(func() {
		imageFile.orientation = orientation
	})
	return imageFile
}

func (s *ImageFile) IsValid() bool {
	return s != nil && s.path != "" && s.formatClass != FormatUnsupported
}

func (s *ImageFile) String() string {
	if s == nil {
		return "ImageFile<nil>"
	} else if !s.IsValid() {
		return "ImageFile<invalid>"
	}
	return "ImageFile{" + s.filename + "}"
}

func (s *ImageFile) GetPath() string {
	if s != nil {
		return s.path
	}
	return ""
}

func (s *ImageFile) GetDir() string {
	if s != nil {
		return s.directory
	}
	return ""
}

func (s *ImageFile) GetFile() string {
	if s != nil {
		return s.filename
	}
	return ""
}

func (s *ImageFile) GetFormatClass() FormatClass {
	if s != nil {
		return s.formatClass
	}
	return FormatUnsupported
}

func (s *ImageFile) IsRaw() bool {
	return s.GetFormatClass() == FormatRaw
}

// GetOrientation reads the EXIF orientation on first call and caches it.
// Files without readable EXIF data are treated as unrotated.
func (s *ImageFile) GetOrientation() Orientation {
	if !s.IsValid() {
		return OrientationNormal
	}
	s.orientationOnce.Do(func() {
		s.orientation = LoadExifOrientation(s.path)
	})
	return s.orientation
}
