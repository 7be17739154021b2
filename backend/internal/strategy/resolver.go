package strategy

import (
	"errors"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

const (
	FastMinPreviewLongEdge        = 2900
	HighQualityMinRatio           = 0.75
	HighQualityMinPreviewLongEdge = 5900
	UltraQualityMinRatio          = 0.90
	UltraQualityMinLongEdge       = 9000
)

var ErrProbe = errors.New("could not probe RAW file")

// Probe describes what the first RAW file of a session contains
type Probe struct {
	Preview    apitype.Size
	HasPreview bool
	Raw        apitype.Size
	HasRawSize bool
}

type Prober interface {
	Probe(path string) (*Probe, error)
	TryDecode(path string) error
}

type Decision struct {
	Strategy apitype.RawStrategy
	Advisory api.AdvisoryKind
}

// Resolver decides once per session whether embedded previews are good
// enough or RAW files must be fully decoded.
type Resolver struct {
	state  *State
	mode   apitype.QualityMode
	prober Prober
	sender api.Sender
}

func NewResolver(state *State, mode apitype.QualityMode, prober Prober, sender api.Sender) *Resolver {
	return &Resolver{
		state:  state,
		mode:   mode,
		prober: prober,
		sender: sender,
	}
}

func (s *Resolver) GetMode() apitype.QualityMode {
	return s.mode
}

func (s *Resolver) GetState() *State {
	return s.state
}

// Resolve returns the session strategy. The first call probes the given
// file while holding the state lock; later calls reuse the decision.
func (s *Resolver) Resolve(path string) apitype.RawStrategy {
	s.state.mux.Lock()
	defer s.state.mux.Unlock()
	if s.state.initialized {
		return s.state.strategy
	}

	probe, err := s.prober.Probe(path)
	if err != nil {
		logger.Warn.Printf("%s '%s': %s", ErrProbe, path, err)
		probe = nil
	}
	decision := Decide(s.mode, probe, func() error {
		return s.prober.TryDecode(path)
	})

	s.state.strategy = decision.Strategy
	s.state.initialized = true
	logger.Info.Printf("RAW strategy for session %s: %s (mode '%s', probed '%s')",
		s.state.sessionId, decision.Strategy, s.mode, path)

	if s.sender != nil {
		if decision.Advisory != "" {
			s.sender.SendCommandToTopic(api.ShowAdvisory, &api.AdvisoryCommand{
				Kind:    decision.Advisory,
				Message: advisoryMessage(decision.Advisory),
			})
		}
		s.sender.SendCommandToTopic(api.StrategyChanged, &api.StrategyChangedCommand{
			Strategy: decision.Strategy,
			Mode:     s.mode,
			Path:     path,
		})
	}
	return decision.Strategy
}

// Decide applies the quality mode thresholds. A nil probe means probing
// failed and always falls back to previews.
func Decide(mode apitype.QualityMode, probe *Probe, tryDecode func() error) Decision {
	if !mode.IsValid() {
		logger.Warn.Printf("Unknown RAW quality mode '%s', using embedded previews", mode)
		return Decision{Strategy: apitype.RawUsePreview, Advisory: api.AdvisoryUnknownMode}
	}
	if mode == apitype.QualityUltraFast {
		if probe == nil || !probe.HasPreview {
			return Decision{Strategy: apitype.RawUsePreview, Advisory: api.AdvisoryChangeSettings}
		}
		return Decision{Strategy: apitype.RawUsePreview}
	}
	if probe == nil {
		return Decision{Strategy: apitype.RawUsePreview}
	}

	var previewIsEnough bool
	switch mode {
	case apitype.QualityFast:
		previewIsEnough = probe.HasPreview && probe.Preview.LongEdge() >= FastMinPreviewLongEdge
	case apitype.QualityHigh:
		previewIsEnough = isPreviewEnough(probe, HighQualityMinRatio, HighQualityMinPreviewLongEdge)
	case apitype.QualityUltra:
		previewIsEnough = isPreviewEnough(probe, UltraQualityMinRatio, UltraQualityMinLongEdge)
	}
	if previewIsEnough {
		return Decision{Strategy: apitype.RawUsePreview}
	}

	if err := tryDecode(); err != nil {
		logger.Warn.Printf("Full RAW decode failed, falling back to embedded previews: %s", err)
		return Decision{Strategy: apitype.RawUsePreview, Advisory: api.AdvisoryCompatibility}
	}
	return Decision{Strategy: apitype.RawUseDecode}
}

func isPreviewEnough(probe *Probe, minRatio float64, minLongEdge int) bool {
	if !probe.HasPreview {
		return false
	}
	if probe.HasRawSize && !probe.Raw.IsZero() {
		return probe.Preview.LongEdgeRatio(probe.Raw) >= minRatio
	}
	return probe.Preview.LongEdge() >= minLongEdge
}

func advisoryMessage(kind api.AdvisoryKind) string {
	switch kind {
	case api.AdvisoryChangeSettings:
		return "No embedded previews found in RAW files. Choose a higher quality RAW mode in the settings."
	case api.AdvisoryCompatibility:
		return "RAW files could not be decoded, showing embedded previews instead."
	case api.AdvisoryUnknownMode:
		return "Unknown RAW mode in settings, showing embedded previews."
	}
	return ""
}
