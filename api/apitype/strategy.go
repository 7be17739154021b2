package apitype

import "strings"

// RawStrategy is the session wide decision on how RAW images are loaded
type RawStrategy int

const (
	RawUndetermined RawStrategy = iota
	RawUsePreview
	RawUseDecode
)

func (s RawStrategy) String() string {
	switch s {
	case RawUsePreview:
		return "use_preview"
	case RawUseDecode:
		return "use_decode"
	}
	return "undetermined"
}

// QualityMode is the user's RAW loading preference read from the settings
type QualityMode string

const (
	QualityUltraFast    QualityMode = "ultra_fast"
	QualityFast         QualityMode = "fast"
	QualityHigh         QualityMode = "high_quality"
	QualityUltra        QualityMode = "ultra_quality"
	QualityModeNotKnown QualityMode = ""
)

func StringToQualityMode(value string) QualityMode {
	switch QualityMode(strings.ToLower(strings.TrimSpace(value))) {
	case QualityUltraFast:
		return QualityUltraFast
	case QualityFast:
		return QualityFast
	case QualityHigh:
		return QualityHigh
	case QualityUltra:
		return QualityUltra
	}
	return QualityModeNotKnown
}

func (s QualityMode) IsValid() bool {
	switch s {
	case QualityUltraFast, QualityFast, QualityHigh, QualityUltra:
		return true
	}
	return false
}
