package playback

import (
	"github.com/pkg/errors"

	"ambientcast.app/ambientcast/castprotocol"
	"ambientcast.app/ambientcast/internal/looper"
)

// Backend identifies the strategy variant a Factory builds.
type Backend int

const (
	BackendLocal Backend = iota
	BackendCast
)

func (b Backend) String() string {
	if b == BackendCast {
		return "cast"
	}
	return "local"
}

// Factory builds strategies for the active backend.
type Factory struct {
	backend   Backend
	sched     looper.Scheduler
	newPlayer PlayerFactory
	session   castprotocol.Session
	namespace string
	opts      []Option
}

// NewLocalFactory builds strategies that play on local engines created by
// newPlayer.
func NewLocalFactory(sched looper.Scheduler, newPlayer PlayerFactory, opts ...Option) (*Factory, error) {
	if newPlayer == nil {
		return nil, errors.Wrap(ErrUnsupportedBackend, "local backend without a player factory")
	}
	return &Factory{
		backend:   BackendLocal,
		sched:     sched,
		newPlayer: newPlayer,
		opts:      opts,
	}, nil
}

// NewCastFactory builds strategies that drive sounds on session. It fails
// when there is no session.
func NewCastFactory(sched looper.Scheduler, session castprotocol.Session, namespace string, opts ...Option) (*Factory, error) {
	if session == nil {
		return nil, errors.Wrap(ErrUnsupportedBackend, "cast backend without a session")
	}
	if namespace == "" {
		return nil, errors.Wrap(ErrUnsupportedBackend, "cast backend without a namespace")
	}
	return &Factory{
		backend:   BackendCast,
		sched:     sched,
		session:   session,
		namespace: namespace,
		opts:      opts,
	}, nil
}

// NewFactory selects the backend from session availability: a nil session
// plays locally.
func NewFactory(sched looper.Scheduler, session castprotocol.Session, namespace string, newPlayer PlayerFactory, opts ...Option) (*Factory, error) {
	if session == nil {
		return NewLocalFactory(sched, newPlayer, opts...)
	}
	return NewCastFactory(sched, session, namespace, opts...)
}

func (f *Factory) Backend() Backend {
	return f.backend
}

// New returns a strategy for sound on the factory's backend.
func (f *Factory) New(sound Sound) Strategy {
	if f.backend == BackendCast {
		return NewCastStrategy(sound, f.session, f.namespace, f.sched, f.opts...)
	}
	return NewLocalStrategy(sound, f.sched, f.newPlayer, f.opts...)
}
