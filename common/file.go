package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// LoadImages lists the supported images of the directory sorted by name.
// Sub directories are not scanned.
func LoadImages(dir string) ([]*apitype.ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan directory '%s': %w", dir, err)
	}

	logger.Info.Printf("Scanning directory '%s'", dir)
	var imageFiles []*apitype.ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !apitype.IsSupported(entry.Name()) {
			continue
		}
		filePath := filepath.Join(dir, entry.Name())
		logger.Trace.Printf(" - %s", filePath)
		imageFiles = append(imageFiles, apitype.NewImageFile(filePath))
	}
	sort.Slice(imageFiles, func(i, j int) bool {
		return imageFiles[i].GetFile() < imageFiles[j].GetFile()
	})
	logger.Info.Printf("Found %d images", len(imageFiles))
	return imageFiles, nil
}

func ToPaths(imageFiles []*apitype.ImageFile) []string {
	paths := make([]string, len(imageFiles))
	for i, imageFile := range imageFiles {
		paths[i] = imageFile.GetPath()
	}
	return paths
}
