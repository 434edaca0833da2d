// Package stream implements the streaming recognizer: a per-connection
// state machine that ingests a live PCM sample stream, periodically
// fingerprints whatever has accumulated, and reports progress until it
// reaches a match, a non-match, or a fatal error.
package stream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/match"
	"github.com/kevigoci/musica/shazam"
	"github.com/kevigoci/musica/xerrors"
)

// State is one of the recognizer's states.
type State int

const (
	Init State = iota
	Listening
	Analyzing
	Matched
	NoMatch
	TerminalError
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Listening:
		return "listening"
	case Analyzing:
		return "analyzing"
	case Matched:
		return "match_found"
	case NoMatch:
		return "no_match"
	case TerminalError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == Matched || s == NoMatch || s == TerminalError
}

// Timing holds the session's tunable timing parameters (spec §4.7,
// §5). All are seconds unless noted.
type Timing struct {
	TickS          float64 // progress emission cadence
	MinQueryS      float64
	MaxQueryS      float64
	AttemptEveryS  float64
	IdleTimeout    time.Duration
	AttemptTimeout time.Duration
}

// DefaultTiming returns the spec's named defaults. TICK_S has no
// explicit default in the contract; 1s is chosen as a progress
// cadence fine enough to feel live without flooding the transport.
func DefaultTiming() Timing {
	return Timing{
		TickS:          1,
		MinQueryS:      3,
		MaxQueryS:      12,
		AttemptEveryS:  2,
		IdleTimeout:    10 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// Progress is emitted while Listening.
type Progress struct {
	DurationS float64
}

// Outcome is the terminal result of a session.
type Outcome struct {
	State      State
	Song       catalog.Song
	Confidence float64
	Message    string
}

// Pool bounds the number of concurrent analysis attempts across all
// sessions, so a burst of simultaneous streams can't starve CPU away
// from ingestion.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool allowing up to n concurrent analysis attempts.
func NewPool(n int64) *Pool {
	return &Pool{sem: semaphore.NewWeighted(n)}
}

// Session drives one streaming recognition connection's state machine.
// It is not safe for concurrent use from multiple goroutines beyond
// the ingestion/analysis split documented on each method.
type Session struct {
	store  *catalog.Store
	cfg    shazam.Config
	timing Timing
	pool   *Pool

	mu              sync.Mutex
	state           State
	buf             []float64
	sourceRate      int
	framer          *shazam.Framer
	frames          [][]float64
	lastAttempt     time.Time
	lastSampleAt    time.Time
	attemptInFlight bool
}

// NewSession creates a Session ready to receive a "config" message
// (via Configure) and then PCM chunks (via Ingest).
func NewSession(store *catalog.Store, cfg shazam.Config, timing Timing, pool *Pool) *Session {
	return &Session{
		store:        store,
		cfg:          cfg,
		timing:       timing,
		pool:         pool,
		state:        Init,
		lastSampleAt: time.Now(),
	}
}

// Configure transitions Init -> Listening once the client reports its
// source sample rate.
func (s *Session) Configure(sourceRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Init {
		return xerrors.NewTransportError("session already configured")
	}
	if sourceRate <= 0 {
		s.state = TerminalError
		return xerrors.NewDecodeError("invalid sample rate %d", sourceRate)
	}

	s.sourceRate = sourceRate
	s.framer = shazam.NewFramer(s.cfg.WindowSize, s.cfg.HopSize)
	s.state = Listening
	return nil
}

// State reports the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ingest appends a chunk of raw mono float64 samples (at the
// configured source rate) to the session buffer, resampling to the
// canonical analysis rate and framing as it goes. It never blocks on
// analysis: frames are queued and picked up by the next Attempt.
func (s *Session) Ingest(samples []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil
	}

	s.lastSampleAt = time.Now()

	resampled, err := shazam.Resample(samples, s.sourceRate, s.cfg.SampleRate)
	if err != nil {
		s.state = TerminalError
		return err
	}

	s.buf = append(s.buf, resampled...)
	s.frames = append(s.frames, s.framer.Push(resampled)...)

	maxSamples := int(s.timing.MaxQueryS * float64(s.cfg.SampleRate))
	if len(s.buf) > maxSamples {
		drop := len(s.buf) - maxSamples
		s.buf = append([]float64(nil), s.buf[drop:]...)
	}
	maxFrames := maxSamples/s.cfg.HopSize + 1
	if len(s.frames) > maxFrames {
		drop := len(s.frames) - maxFrames
		s.frames = s.frames[drop:]
	}

	return nil
}

// BufferedSeconds reports how much audio is currently held.
func (s *Session) BufferedSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(len(s.buf)) / float64(s.cfg.SampleRate)
}

// IdleExpired reports whether the session has gone without samples
// longer than its configured IdleTimeout.
func (s *Session) IdleExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSampleAt) > s.timing.IdleTimeout
}

// ShouldAttempt reports whether enough audio has accumulated, and
// enough time has passed since the last attempt, to justify starting
// a new analysis attempt right now.
func (s *Session) ShouldAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Listening || s.attemptInFlight {
		return false
	}
	bufferedS := float64(len(s.buf)) / float64(s.cfg.SampleRate)
	if bufferedS < s.timing.MinQueryS {
		return false
	}
	return time.Since(s.lastAttempt) >= time.Duration(s.timing.AttemptEveryS*float64(time.Second))
}

// Attempt runs one fingerprint+match pass over the currently buffered
// frames, offloaded onto the session's worker pool so ingestion is
// never blocked. It transitions the session's state according to
// spec §4.7's ANALYZING rules. Errors from the match itself degrade
// the session back to Listening rather than terminating it.
func (s *Session) Attempt(ctx context.Context, m *match.Matcher) (*Outcome, error) {
	s.mu.Lock()
	if s.attemptInFlight || s.state != Listening {
		s.mu.Unlock()
		return nil, nil
	}
	s.attemptInFlight = true
	s.state = Analyzing
	frames := append([][]float64(nil), s.frames...)
	bufferedS := float64(len(s.buf)) / float64(s.cfg.SampleRate)
	s.lastAttempt = time.Now()
	s.mu.Unlock()

	if err := s.pool.sem.Acquire(ctx, 1); err != nil {
		s.mu.Lock()
		s.attemptInFlight = false
		if s.state == Analyzing {
			s.state = Listening
		}
		s.mu.Unlock()
		return nil, nil
	}
	defer s.pool.sem.Release(1)

	attemptCtx, cancel := context.WithTimeout(ctx, s.timing.AttemptTimeout)
	defer cancel()

	result, matchErr := runAttempt(attemptCtx, frames, s.cfg, m)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attemptInFlight = false

	if s.state != Analyzing {
		// a Stop() call landed while this attempt was in flight; its
		// result is discarded and the session stays terminal.
		return nil, nil
	}

	if matchErr != nil {
		// a single failed attempt only degrades the session, not ends it
		s.state = Listening
		return nil, nil
	}

	if result != nil && result.Accepted {
		s.state = Matched
		song, err := s.store.GetSong(result.SongID)
		if err != nil {
			s.state = TerminalError
			return &Outcome{State: TerminalError, Message: err.Error()}, nil
		}
		return &Outcome{State: Matched, Song: song, Confidence: result.Confidence}, nil
	}

	if bufferedS >= s.timing.MaxQueryS {
		s.state = NoMatch
		return &Outcome{State: NoMatch, Message: "no match found within max query window"}, nil
	}

	s.state = Listening
	return nil, nil
}

// runAttempt fingerprints frames and matches the result against the
// catalog. A buffer with no extractable peaks (silence, noise below
// FLOOR_DB) is not an error: shazam.Fingerprint returns an empty hash
// set and match.Matcher.Match returns a well-defined, unaccepted
// Result, so it flows through Attempt's normal reject path rather than
// being special-cased here (spec §7: fingerprinting and matching never
// raise on empty inputs).
func runAttempt(ctx context.Context, frames [][]float64, cfg shazam.Config, m *match.Matcher) (*match.Result, error) {
	done := make(chan struct {
		res *match.Result
		err error
	}, 1)

	go func() {
		spec := shazam.Spectrogram(frames, cfg)
		peaks := shazam.ExtractPeaks(spec, cfg)
		hashed := shazam.Fingerprint(peaks, cfg)
		queries := match.FromHashedPeaks(hashed)
		result, err := m.Match(queries)
		done <- struct {
			res *match.Result
			err error
		}{&result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.res, out.err
	}
}

// Stop marks the session as terminated by client request (spec §5's
// STOP signal). Any in-flight attempt is left to finish silently;
// its result will be discarded because the state is already terminal.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Terminal() {
		s.state = NoMatch
	}
}
