package common

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

const (
	DefaultPinNeighbours = 3
	DefaultDcrawPath     = "dcraw"
)

// Settings is the persisted session state written by the settings
// collaborator. It is only read here, once at startup.
type Settings struct {
	RawStrategy   string `yaml:"raw_strategy"`
	CacheSizeHint *int   `yaml:"cache_size_hint,omitempty"`
}

func LoadSettings(path string) (*Settings, error) {
	settings := &Settings{}
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info.Printf("Settings file '%s' not found, using defaults", path)
		return settings, nil
	} else if err != nil {
		return nil, fmt.Errorf("read settings '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse settings '%s': %w", path, err)
	}
	logger.Debug.Printf("Loaded settings from '%s': raw_strategy='%s'", path, settings.RawStrategy)
	return settings, nil
}

// ApplyParams lets command line flags override the values from the file
func (s *Settings) ApplyParams(params *Params) *Settings {
	if params == nil {
		return s
	}
	if params.RawStrategy() != "" {
		s.RawStrategy = params.RawStrategy()
	}
	if params.CacheSizeHint() > 0 {
		hint := params.CacheSizeHint()
		s.CacheSizeHint = &hint
	}
	return s
}

func (s *Settings) QualityMode() apitype.QualityMode {
	return apitype.StringToQualityMode(s.RawStrategy)
}

func (s *Settings) GetCacheSizeHint() int {
	if s.CacheSizeHint == nil || *s.CacheSizeHint < 0 {
		return 0
	}
	return *s.CacheSizeHint
}
