package api

import "vincit.fi/image-viewer/api/apitype"

type ErrorCommand struct {
	Message string

	apitype.NotThrottled
}

type AdvisoryKind string

const (
	// AdvisoryChangeSettings is shown when the fastest mode cannot find embedded previews
	AdvisoryChangeSettings AdvisoryKind = "change-settings"
	// AdvisoryCompatibility is shown when full RAW decoding failed and previews are used instead
	AdvisoryCompatibility AdvisoryKind = "compatibility"
	// AdvisoryUnknownMode is shown when the configured RAW mode is not recognized
	AdvisoryUnknownMode AdvisoryKind = "unknown-mode"
)

type AdvisoryCommand struct {
	Kind    AdvisoryKind
	Message string

	apitype.NotThrottled
}

type StrategyChangedCommand struct {
	Strategy apitype.RawStrategy
	Mode     apitype.QualityMode
	Path     string

	apitype.NotThrottled
}

type ImageLoadedCommand struct {
	Path         string
	RequestIndex int
	Width        int
	Height       int
	FromCache    bool

	apitype.Throttled
}
