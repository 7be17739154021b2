package strategy

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
)

type MockProber struct {
	Prober
	mock.Mock
}

func (s *MockProber) Probe(path string) (*Probe, error) {
	args := s.Called(path)
	probe, _ := args.Get(0).(*Probe)
	return probe, args.Error(1)
}

func (s *MockProber) TryDecode(path string) error {
	return s.Called(path).Error(0)
}

type MockSender struct {
	api.Sender
	mock.Mock
}

func (s *MockSender) SendCommandToTopic(topic api.Topic, command apitype.Command) {
	s.Called(topic, command)
}

func previewOnly(longEdge int) *Probe {
	return &Probe{Preview: apitype.SizeOf(longEdge, longEdge*2/3), HasPreview: true}
}

func withRaw(previewLongEdge int, rawLongEdge int) *Probe {
	return &Probe{
		Preview:    apitype.SizeOf(previewLongEdge, previewLongEdge*2/3),
		HasPreview: true,
		Raw:        apitype.SizeOf(rawLongEdge, rawLongEdge*2/3),
		HasRawSize: true,
	}
}

type decodeCounter struct {
	calls int
	err   error
}

func (s *decodeCounter) tryDecode() error {
	s.calls++
	return s.err
}

func TestDecide_Thresholds(t *testing.T) {
	a := assert.New(t)

	t.Run("Fast with 3000px preview uses preview", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityFast, previewOnly(3000), decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
		a.Equal(0, decoder.calls)
		a.Empty(decision.Advisory)
	})
	t.Run("Fast with 2000px preview attempts decode", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityFast, previewOnly(2000), decoder.tryDecode)

		a.Equal(apitype.RawUseDecode, decision.Strategy)
		a.Equal(1, decoder.calls)
	})
	t.Run("Fast at exactly 2900px uses preview", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityFast, previewOnly(2900), decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
	})
	t.Run("High quality with ratio 0.80 uses preview", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityHigh, withRaw(4800, 6000), decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
		a.Equal(0, decoder.calls)
	})
	t.Run("Ultra quality with ratio 0.80 attempts decode", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityUltra, withRaw(4800, 6000), decoder.tryDecode)

		a.Equal(apitype.RawUseDecode, decision.Strategy)
		a.Equal(1, decoder.calls)
	})
	t.Run("Ultra quality with ratio 0.95 uses preview", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityUltra, withRaw(5700, 6000), decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
	})
	t.Run("High quality without RAW size uses absolute threshold", func(t *testing.T) {
		decoder := &decodeCounter{}
		a.Equal(apitype.RawUsePreview, Decide(apitype.QualityHigh, previewOnly(5900), decoder.tryDecode).Strategy)
		a.Equal(apitype.RawUseDecode, Decide(apitype.QualityHigh, previewOnly(5899), decoder.tryDecode).Strategy)
		a.Equal(1, decoder.calls)
	})
	t.Run("Ultra quality without RAW size uses absolute threshold", func(t *testing.T) {
		decoder := &decodeCounter{}
		a.Equal(apitype.RawUsePreview, Decide(apitype.QualityUltra, previewOnly(9000), decoder.tryDecode).Strategy)
		a.Equal(apitype.RawUseDecode, Decide(apitype.QualityUltra, previewOnly(8000), decoder.tryDecode).Strategy)
	})
	t.Run("Missing preview attempts decode", func(t *testing.T) {
		decoder := &decodeCounter{}
		probe := &Probe{Raw: apitype.SizeOf(6000, 4000), HasRawSize: true}

		a.Equal(apitype.RawUseDecode, Decide(apitype.QualityHigh, probe, decoder.tryDecode).Strategy)
	})
}

func TestDecide_Fallbacks(t *testing.T) {
	a := assert.New(t)

	t.Run("Failed decode falls back to preview", func(t *testing.T) {
		decoder := &decodeCounter{err: errors.New("unsupported camera")}
		decision := Decide(apitype.QualityFast, previewOnly(1600), decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
		a.Equal(api.AdvisoryCompatibility, decision.Advisory)
	})
	t.Run("Ultra fast always uses preview", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityUltraFast, previewOnly(160), decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
		a.Empty(decision.Advisory)
		a.Equal(0, decoder.calls)
	})
	t.Run("Ultra fast without preview warns", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityUltraFast, &Probe{}, decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
		a.Equal(api.AdvisoryChangeSettings, decision.Advisory)
	})
	t.Run("Unknown mode", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityModeNotKnown, previewOnly(100), decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
		a.Equal(api.AdvisoryUnknownMode, decision.Advisory)
		a.Equal(0, decoder.calls)
	})
	t.Run("Probe failed", func(t *testing.T) {
		decoder := &decodeCounter{}
		decision := Decide(apitype.QualityUltra, nil, decoder.tryDecode)

		a.Equal(apitype.RawUsePreview, decision.Strategy)
		a.Equal(0, decoder.calls)
	})
}

func TestResolver_ProbesOncePerSession(t *testing.T) {
	a := assert.New(t)

	prober := &MockProber{}
	prober.On("Probe", "/photos/first.cr2").Return(previewOnly(2000), nil).Once()
	prober.On("TryDecode", "/photos/first.cr2").Return(nil).Once()
	sender := &MockSender{}
	sender.On("SendCommandToTopic", api.StrategyChanged, mock.Anything).Once()

	state := NewState()
	resolver := NewResolver(state, apitype.QualityFast, prober, sender)

	a.Equal(apitype.RawUseDecode, resolver.Resolve("/photos/first.cr2"))
	a.Equal(apitype.RawUseDecode, resolver.Resolve("/photos/first.cr2"))
	a.Equal(apitype.RawUseDecode, resolver.Resolve("/photos/second.cr2"))

	prober.AssertNumberOfCalls(t, "Probe", 1)
	prober.AssertNumberOfCalls(t, "TryDecode", 1)
	sender.AssertExpectations(t)

	strategy, initialized := state.Get()
	a.True(initialized)
	a.Equal(apitype.RawUseDecode, strategy)
}

func TestResolver_Concurrent(t *testing.T) {
	a := assert.New(t)

	prober := &MockProber{}
	prober.On("Probe", mock.Anything).Return(previewOnly(4000), nil)
	resolver := NewResolver(NewState(), apitype.QualityFast, prober, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Equal(apitype.RawUsePreview, resolver.Resolve("/photos/a.nef"))
		}()
	}
	wg.Wait()

	prober.AssertNumberOfCalls(t, "Probe", 1)
}

func TestResolver_Reset(t *testing.T) {
	a := assert.New(t)

	prober := &MockProber{}
	prober.On("Probe", "/a/first.nef").Return(previewOnly(4000), nil).Once()
	prober.On("Probe", "/b/first.nef").Return(previewOnly(1000), nil).Once()
	prober.On("TryDecode", "/b/first.nef").Return(errors.New("no decoder")).Once()
	sender := &MockSender{}
	sender.On("SendCommandToTopic", api.StrategyChanged, mock.Anything).Twice()
	sender.On("SendCommandToTopic", api.ShowAdvisory, mock.MatchedBy(func(command *api.AdvisoryCommand) bool {
		return command.Kind == api.AdvisoryCompatibility && command.Message != ""
	})).Once()

	state := NewState()
	resolver := NewResolver(state, apitype.QualityFast, prober, sender)

	a.Equal(apitype.RawUsePreview, resolver.Resolve("/a/first.nef"))
	firstSession := state.SessionId()

	state.Reset()
	strategy, initialized := state.Get()
	a.False(initialized)
	a.Equal(apitype.RawUndetermined, strategy)
	a.NotEqual(firstSession, state.SessionId())

	a.Equal(apitype.RawUsePreview, resolver.Resolve("/b/first.nef"))

	prober.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestResolver_ProbeError(t *testing.T) {
	a := assert.New(t)

	prober := &MockProber{}
	prober.On("Probe", "/broken.nef").Return(nil, ErrProbe).Once()
	resolver := NewResolver(NewState(), apitype.QualityUltra, prober, nil)

	a.Equal(apitype.RawUsePreview, resolver.Resolve("/broken.nef"))
	prober.AssertNotCalled(t, "TryDecode", mock.Anything)
}
