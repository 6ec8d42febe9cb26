package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/maauso/guided-audio/internal/compose"
	"github.com/maauso/guided-audio/internal/metrics"
	"github.com/maauso/guided-audio/internal/playback"
	"github.com/maauso/guided-audio/internal/session/id"
)

// Composer builds the streams a session plays.
type Composer interface {
	Compose(ctx context.Context, prompts []compose.Prompt, opts compose.Options) (*compose.Stream, error)
	ComposeRemainder(ctx context.Context, prev *compose.Stream, at float64, prompts []compose.Prompt, opts compose.Options) (*compose.Stream, error)
}

// Player is the playback engine as a session drives it.
type Player interface {
	LoadAndPlay(ctx context.Context, stream *compose.Stream) error
	Pause()
	Resume(ctx context.Context) error
	Seek(ctx context.Context, t float64) error
	Swap(ctx context.Context, stream *compose.Stream) error
	Stop()
	ToggleMute() bool
	CurrentTime() float64
	IsPaused() bool
	IsMuted() bool
	SetObserver(o playback.Observer)
}

// Compile-time check that the engine satisfies Player.
var _ Player = (*playback.Engine)(nil)

// Config holds the session timing settings.
type Config struct {
	// TickInterval is the period of prompt mapping and progress reports.
	TickInterval time.Duration
	// TextLeadDelay is how long audio leads the prompt text.
	TextLeadDelay time.Duration
	// TextFallback is how long text stays up when it cannot follow audio.
	TextFallback time.Duration
}

// DefaultConfig returns the default session timing.
func DefaultConfig() Config {
	return Config{
		TickInterval:  250 * time.Millisecond,
		TextLeadDelay: 500 * time.Millisecond,
		TextFallback:  8 * time.Second,
	}
}

// Session is one guided session: a prompt sequence, its composed stream and
// the playback that walks through it.
type Session struct {
	ID        string
	CreatedAt time.Time

	prompts   []compose.Prompt
	composer  Composer
	newPlayer func() Player
	cfg       Config
	feed      *Feed
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	opts   compose.Options
	state  State
	gen    int
	player Player
	stream *compose.Stream

	promptIndex int
	textVisible bool
	textDone    bool
	fadeIn      *time.Timer
	fadeOut     *time.Timer

	userPaused  bool
	forcedPause bool
	muted       bool

	// Degraded sessions run text-only on a wall clock from clockBase.
	degraded    bool
	clockBase   float64
	clockAt     time.Time
	clockPaused bool

	stopTick context.CancelFunc
	lastErr  string

	// owns reports whether this session still holds the playback token.
	owns func(id string) bool
	// pendingErr is a playback error raised before the session went active.
	pendingErr error
}

// Option is a function that configures a Session.
type Option func(*Session)

// WithID sets the session ID instead of generating one.
func WithID(sessionID string) Option {
	return func(s *Session) {
		s.ID = sessionID
	}
}

// WithConfig sets the session timing.
func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithClock sets the wall clock used in degraded mode.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithOwnerCheck makes Begin refuse to go active unless owns reports the
// session still holds the playback token.
func WithOwnerCheck(owns func(id string) bool) Option {
	return func(s *Session) {
		s.owns = owns
	}
}

// New creates an idle session. newPlayer is called on every begin for a
// fresh engine.
func New(prompts []compose.Prompt, opts compose.Options, composer Composer, newPlayer func() Player, logger *slog.Logger, options ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		ID:          id.Generate(),
		CreatedAt:   time.Now(),
		prompts:     append([]compose.Prompt(nil), prompts...),
		composer:    composer,
		newPlayer:   newPlayer,
		cfg:         DefaultConfig(),
		feed:        NewFeed(),
		logger:      logger,
		now:         time.Now,
		opts:        opts,
		state:       StateIdle,
		promptIndex: -1,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.cfg.TickInterval <= 0 {
		s.cfg.TickInterval = DefaultConfig().TickInterval
	}
	s.logger = s.logger.With(slog.String("session_id", s.ID))
	return s
}

// Feed returns the session's progress feed.
func (s *Session) Feed() *Feed {
	return s.feed
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Prompts returns the session's prompts.
func (s *Session) Prompts() []compose.Prompt {
	return append([]compose.Prompt(nil), s.prompts...)
}

// Stream returns the composed stream, or nil before composition.
func (s *Session) Stream() *compose.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// TimeMap returns a copy of the composed time map.
func (s *Session) TimeMap() []compose.TimeMapEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	return append([]compose.TimeMapEntry(nil), s.stream.TimeMap...)
}

// Begin composes the stream and starts playback. It returns ErrBusy while a
// previous begin is still composing. A composition or playback failure
// returns the session to idle and is returned to the caller.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return ErrBusy
	}
	if err := s.transitionLocked(StateLoading); err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	gen := s.gen
	opts := s.opts
	s.lastErr = ""
	s.pendingErr = nil
	s.mu.Unlock()

	s.logger.Info("composing session", slog.Int("prompts", len(s.prompts)))

	stream, err := s.composer.Compose(ctx, s.prompts, opts)
	if err != nil {
		return s.abortBegin(gen, err)
	}

	player := s.newPlayer()
	player.SetObserver(&observer{s: s, gen: gen})
	if err := player.LoadAndPlay(ctx, stream); err != nil {
		return s.abortBegin(gen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateLoading {
		player.Stop()
		return ErrInterrupted
	}
	if s.owns != nil && !s.owns(s.ID) {
		player.Stop()
		s.state = StateIdle
		s.lastErr = ErrInterrupted.Error()
		s.logger.Info("playback token taken by another session before start")
		return ErrInterrupted
	}
	if err := s.transitionLocked(StateActive); err != nil {
		player.Stop()
		return err
	}
	if s.muted {
		player.ToggleMute()
	}
	s.player = player
	s.stream = stream
	s.promptIndex = -1

	tickCtx, cancel := context.WithCancel(context.Background())
	s.stopTick = cancel
	go s.run(tickCtx)

	metrics.SessionsActive.Inc()
	s.logger.Info("session active",
		slog.Float64("duration", stream.Duration),
		slog.Int("bytes", len(stream.Data)),
	)
	if s.pendingErr != nil {
		s.degradeLocked(s.pendingErr)
		s.pendingErr = nil
	}
	return nil
}

func (s *Session) abortBegin(gen int, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state == StateLoading {
		s.state = StateIdle
		s.lastErr = err.Error()
	}
	s.logger.Warn("session failed to start", slog.String("error", err.Error()))
	return err
}

// Pause pauses playback at the user's request. Pausing twice is a no-op.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	s.userPaused = true
	s.pauseLocked()
	return nil
}

// Resume resumes playback. Resuming while playing is a no-op.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	s.userPaused = false
	s.forcedPause = false
	return s.resumeLocked(ctx)
}

// SetHidden relays host visibility. Hiding forces a pause; becoming visible
// resumes only when the pause was forced and the user has not paused since.
func (s *Session) SetHidden(ctx context.Context, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil
	}
	if hidden {
		if !s.isPausedLocked() {
			s.forcedPause = true
			s.pauseLocked()
		}
		return nil
	}
	if s.forcedPause && !s.userPaused {
		s.forcedPause = false
		return s.resumeLocked(ctx)
	}
	s.forcedPause = false
	return nil
}

// Seek moves to userSeconds of user-visible time, net of the preamble.
// Positions before the last resize point land on it.
func (s *Session) Seek(ctx context.Context, userSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	preamble := s.stream.Preamble
	abs := preamble + math.Min(math.Max(userSeconds, 0), math.Max(0, s.stream.Duration-preamble))
	abs = math.Max(abs, s.stream.Offset)

	if s.degraded {
		s.clockBase = abs
		s.clockAt = s.now()
	} else if err := s.player.Seek(ctx, abs); err != nil {
		return err
	}

	s.stopTimersLocked()
	s.promptIndex = -1
	s.textVisible = false
	s.textDone = false
	return nil
}

// ToggleMute flips mute and returns the new state.
func (s *Session) ToggleMute() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.muted, ErrNotActive
	}
	s.muted = !s.muted
	if s.player != nil && s.player.IsMuted() != s.muted {
		s.player.ToggleMute()
	}
	return s.muted, nil
}

// Skip tears playback down and returns the session to idle.
func (s *Session) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Restart tears playback down and begins again from the start.
func (s *Session) Restart(ctx context.Context) error {
	s.Skip()
	return s.Begin(ctx)
}

// Close tears the session down and stops its feed.
func (s *Session) Close() {
	s.Skip()
	s.feed.Close()
}

// Resize retargets a variable-length session to target seconds of user time.
// Only the unplayed remainder is recomposed and swapped in; elapsed time is
// preserved.
func (s *Session) Resize(ctx context.Context, target float64) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.opts.TargetDuration <= 0 {
		s.mu.Unlock()
		return compose.ErrResizeUnsupported
	}
	if target <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: target duration must be positive", compose.ErrInvalidOptions)
	}
	at := s.absoluteLocked()
	prev := s.stream
	gen := s.gen
	opts := s.opts
	opts.TargetDuration = target
	s.mu.Unlock()

	next, err := s.composer.ComposeRemainder(ctx, prev, at, s.prompts, opts)
	if err != nil {
		s.logger.Warn("resize failed", slog.Float64("target", target), slog.String("error", err.Error()))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateActive {
		return ErrInterrupted
	}
	if !s.degraded {
		if err := s.player.Swap(ctx, next); err != nil {
			return err
		}
	}
	s.stream = next
	s.opts.TargetDuration = target

	// Slot ends after the resize point moved.
	if s.promptIndex >= 0 && !s.textDone && !s.isPausedLocked() {
		s.armFadeOutLocked(s.absoluteLocked())
	}

	s.logger.Info("session resized",
		slog.Float64("target", target),
		slog.Float64("at", at),
		slog.Float64("duration", next.Duration),
	)
	return nil
}

// Snapshot returns the current progress.
func (s *Session) Snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		return s.progressLocked(s.absoluteLocked())
	case StateCompleted:
		return s.progressLocked(s.stream.Duration)
	default:
		return Progress{
			ID:          s.ID,
			State:       s.state,
			Total:       s.opts.TargetDuration,
			PromptIndex: -1,
			Muted:       s.muted,
			Error:       s.lastErr,
		}
	}
}

func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick maps the clock onto the time map, drives text visibility, reports
// progress and detects the end of the session.
func (s *Session) tick() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	abs := s.absoluteLocked()
	if idx := s.stream.PromptAt(abs); idx > s.promptIndex {
		s.promptIndex = idx
		s.showPromptLocked(abs)
	}
	done := abs >= s.stream.Duration
	gen := s.gen
	p := s.progressLocked(abs)
	s.mu.Unlock()

	if done {
		s.complete(gen)
		return
	}
	s.feed.Publish(p)
}

func (s *Session) complete(gen int) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	_ = s.transitionLocked(StateCompleted)
	s.releaseLocked()
	s.textVisible = false
	p := s.progressLocked(s.stream.Duration)
	s.mu.Unlock()

	metrics.SessionsActive.Dec()
	metrics.SessionsCompleted.Inc()
	s.logger.Info("session completed")
	s.feed.Publish(p)
}

// degrade switches to text-only mode after a fatal playback error. The clock
// continues on the wall clock from the last known position.
func (s *Session) degrade(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	switch {
	case s.state == StateLoading:
		// The engine failed between starting and Begin going active.
		s.pendingErr = err
	case s.state == StateActive && !s.degraded:
		s.degradeLocked(err)
	}
}

// degradeLocked drops the engine and continues text-only on the wall clock.
// Callers hold mu.
func (s *Session) degradeLocked(err error) {
	abs := s.player.CurrentTime()
	paused := s.player.IsPaused()
	s.player.Stop()
	s.player = nil

	s.degraded = true
	s.clockBase = abs
	s.clockAt = s.now()
	s.clockPaused = paused
	s.lastErr = err.Error()

	if s.promptIndex >= 0 && !s.textDone && !paused {
		s.armFadeOutLocked(abs)
	}
	s.logger.Warn("playback failed, continuing text-only",
		slog.Float64("at", abs),
		slog.String("error", err.Error()),
	)
}

func (s *Session) pauseLocked() {
	if s.isPausedLocked() {
		return
	}
	if s.degraded {
		s.clockBase = s.absoluteLocked()
		s.clockPaused = true
	} else {
		s.player.Pause()
	}
	s.stopTimersLocked()
}

func (s *Session) resumeLocked(ctx context.Context) error {
	if !s.isPausedLocked() {
		return nil
	}
	if s.degraded {
		s.clockAt = s.now()
		s.clockPaused = false
	} else if err := s.player.Resume(ctx); err != nil {
		return err
	}

	if s.promptIndex >= 0 && !s.textDone {
		abs := s.absoluteLocked()
		if !s.textVisible {
			s.armFadeInLocked()
		}
		s.armFadeOutLocked(abs)
	}
	return nil
}

func (s *Session) isPausedLocked() bool {
	if s.degraded {
		return s.clockPaused
	}
	return s.player != nil && s.player.IsPaused()
}

// absoluteLocked returns the absolute stream time. Callers hold mu.
func (s *Session) absoluteLocked() float64 {
	if s.degraded {
		if s.clockPaused {
			return s.clockBase
		}
		return math.Min(s.clockBase+s.now().Sub(s.clockAt).Seconds(), s.stream.Duration)
	}
	if s.player == nil {
		return 0
	}
	return s.player.CurrentTime()
}

func (s *Session) progressLocked(abs float64) Progress {
	preamble := s.stream.Preamble
	total := math.Max(0, s.stream.Duration-preamble)
	elapsed := math.Min(math.Max(0, abs-preamble), total)
	pct := 0.0
	if total > 0 {
		pct = elapsed / total * 100
	}

	p := Progress{
		ID:          s.ID,
		State:       s.state,
		Progress:    pct,
		Elapsed:     elapsed,
		Total:       total,
		ShowTimer:   s.state == StateActive && abs >= preamble,
		IsPaused:    s.isPausedLocked(),
		PromptIndex: s.promptIndex,
		TextVisible: s.textVisible,
		Muted:       s.muted,
		Degraded:    s.degraded,
		Error:       s.lastErr,
	}
	if s.promptIndex >= 0 && s.promptIndex < len(s.stream.TimeMap) {
		p.PromptID = s.stream.TimeMap[s.promptIndex].PromptID
	}
	return p
}

// showPromptLocked starts the text cycle of the current prompt.
func (s *Session) showPromptLocked(abs float64) {
	s.stopTimersLocked()
	s.textVisible = false
	s.textDone = false
	s.armFadeInLocked()
	s.armFadeOutLocked(abs)
}

func (s *Session) armFadeInLocked() {
	if s.fadeIn != nil {
		s.fadeIn.Stop()
	}
	gen, idx := s.gen, s.promptIndex
	s.fadeIn = time.AfterFunc(s.cfg.TextLeadDelay, func() { s.setText(gen, idx, true) })
}

// armFadeOutLocked schedules the fade-out at the prompt's slot end, or after
// TextFallback when the text cannot follow audio.
func (s *Session) armFadeOutLocked(abs float64) {
	if s.fadeOut != nil {
		s.fadeOut.Stop()
	}
	d := s.cfg.TextFallback
	if !s.muted && !s.degraded {
		slotEnd := s.stream.TimeMap[s.promptIndex].SlotEnd
		d = time.Duration(math.Max(0, slotEnd-abs) * float64(time.Second))
	}
	gen, idx := s.gen, s.promptIndex
	s.fadeOut = time.AfterFunc(d, func() { s.setText(gen, idx, false) })
}

func (s *Session) setText(gen, idx int, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.promptIndex != idx || s.state != StateActive {
		return
	}
	if visible {
		s.textVisible = !s.textDone
		return
	}
	s.textVisible = false
	s.textDone = true
}

func (s *Session) stopTimersLocked() {
	if s.fadeIn != nil {
		s.fadeIn.Stop()
		s.fadeIn = nil
	}
	if s.fadeOut != nil {
		s.fadeOut.Stop()
		s.fadeOut = nil
	}
}

// releaseLocked stops the tick loop, timers and engine.
func (s *Session) releaseLocked() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	s.stopTimersLocked()
	if s.player != nil {
		s.player.Stop()
		s.player = nil
	}
}

// teardownLocked returns the session to idle and clears local counters.
func (s *Session) teardownLocked() {
	if s.state == StateIdle {
		return
	}
	if s.state == StateActive {
		metrics.SessionsActive.Dec()
	}
	s.gen++
	s.releaseLocked()
	_ = s.transitionLocked(StateIdle)

	s.stream = nil
	s.promptIndex = -1
	s.textVisible = false
	s.textDone = false
	s.userPaused = false
	s.forcedPause = false
	s.degraded = false
	s.clockPaused = false
	s.logger.Info("session reset")
}

func (s *Session) transitionLocked(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	return nil
}

// observer forwards engine notifications for one begin generation.
type observer struct {
	s   *Session
	gen int
}

func (o *observer) OnTimeUpdate(float64) {
	o.s.mu.Lock()
	current := o.s.gen == o.gen
	o.s.mu.Unlock()
	if current {
		o.s.tick()
	}
}

func (o *observer) OnEnded() {
	o.s.complete(o.gen)
}

func (o *observer) OnPlaybackError(err error) {
	o.s.degrade(o.gen, err)
}
