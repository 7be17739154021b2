package strategy

import (
	"sync"

	"github.com/google/uuid"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// State holds the RAW strategy of the current session. It moves from
// undetermined to determined once and only Reset moves it back.
type State struct {
	mux         sync.Mutex
	strategy    apitype.RawStrategy
	initialized bool
	sessionId   uuid.UUID
}

func NewState() *State {
	return &State{
		strategy:  apitype.RawUndetermined,
		sessionId: uuid.New(),
	}
}

func (s *State) Get() (apitype.RawStrategy, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.strategy, s.initialized
}

func (s *State) SessionId() uuid.UUID {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.sessionId
}

// Reset starts a new RAW session. The next RAW image is probed again.
func (s *State) Reset() {
	s.mux.Lock()
	defer s.mux.Unlock()
	previous := s.sessionId
	s.strategy = apitype.RawUndetermined
	s.initialized = false
	s.sessionId = uuid.New()
	logger.Debug.Printf("RAW strategy reset, session %s -> %s", previous, s.sessionId)
}
