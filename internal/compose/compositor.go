package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/maauso/guided-audio/internal/asset"
	"github.com/maauso/guided-audio/internal/frame"
	"github.com/maauso/guided-audio/internal/metrics"
)

// ErrNoStream is returned when a remainder is requested without a previous stream.
var ErrNoStream = errors.New("compose: previous stream is required")

// DefaultWordsPerSecond is the speaking rate used for duration estimates.
const DefaultWordsPerSecond = 2.5

// maxRounds bounds fetch rounds; the first is the estimate-driven dry run.
const maxRounds = 4

// retainedKey is the buffer key of bytes carried over by a resize.
const retainedKey = "retained:head"

// Fetcher resolves asset references to raw buffers.
type Fetcher interface {
	FetchAll(ctx context.Context, refs []asset.Ref) (map[string][]byte, error)
}

// Compositor builds composed streams from prompt sequences.
type Compositor struct {
	fetcher        Fetcher
	bytesPerSecond int
	wordsPerSecond float64
	toneEstimate   float64
	aligner        frame.Aligner
	logger         *slog.Logger
}

// Option is a function that configures a Compositor.
type Option func(*Compositor)

// WithWordsPerSecond sets the speaking rate used for estimates.
func WithWordsPerSecond(wps float64) Option {
	return func(c *Compositor) {
		if wps > 0 {
			c.wordsPerSecond = wps
		}
	}
}

// WithToneEstimate sets the tone duration assumed before tones are fetched.
func WithToneEstimate(seconds float64) Option {
	return func(c *Compositor) {
		if seconds >= 0 {
			c.toneEstimate = seconds
		}
	}
}

// WithAligner sets the frame aligner used when a resize retains bytes.
func WithAligner(a frame.Aligner) Option {
	return func(c *Compositor) {
		c.aligner = a
	}
}

// New creates a Compositor. bytesPerSecond is the fixed rate shared by every
// asset; durations are derived from byte lengths with it.
func New(fetcher Fetcher, bytesPerSecond int, logger *slog.Logger, opts ...Option) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compositor{
		fetcher:        fetcher,
		bytesPerSecond: bytesPerSecond,
		wordsPerSecond: DefaultWordsPerSecond,
		toneEstimate:   2,
		aligner:        frame.MPEGAligner{},
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BytesPerSecond returns the constant asset byte rate.
func (c *Compositor) BytesPerSecond() int {
	return c.bytesPerSecond
}

// Compose builds a complete stream: pre-roll, opening tone, preamble padding,
// every prompt with its pause, final silence and closing tone.
func (c *Compositor) Compose(ctx context.Context, prompts []Prompt, opts Options) (*Stream, error) {
	started := time.Now()
	if err := c.validate(prompts, opts); err != nil {
		return nil, err
	}

	slots := slotsFor(prompts, c.wordsPerSecond)
	l := layout{
		opening:      true,
		preRoll:      opts.PreRollDelay,
		preamble:     opts.Preamble,
		finalSilence: opts.FinalSilence,
	}

	p, buffers, err := c.resolve(ctx, slots, l, opts.targetTotal(), c.clipEstimates(prompts))
	if err != nil {
		metrics.ComposeErrors.Inc()
		return nil, fmt.Errorf("compose: %w", err)
	}

	data, err := Splice(p.entries, buffers)
	if err != nil {
		metrics.ComposeErrors.Inc()
		return nil, err
	}

	stream := &Stream{
		Data:           data,
		Duration:       p.end,
		Preamble:       opts.Preamble,
		BytesPerSecond: c.bytesPerSecond,
		TimeMap:        p.timeMap,
		Entries:        p.entries,
	}

	metrics.ComposeDuration.Observe(time.Since(started).Seconds())
	c.logger.Info("stream composed",
		slog.Int("prompts", len(prompts)),
		slog.Int("entries", len(p.entries)),
		slog.Int("bytes", len(data)),
		slog.Float64("duration", stream.Duration),
		slog.Duration("elapsed", time.Since(started)),
	)
	return stream, nil
}

// ComposeRemainder recomposes the unplayed part of prev for a new target
// duration. Bytes from the frame boundary at or after at through the end of
// the clip being spoken are retained; the current prompt's remaining pause,
// the following prompts and the closing are planned afresh. No opening tone
// is added. The returned stream's Offset keeps absolute time continuous.
func (c *Compositor) ComposeRemainder(ctx context.Context, prev *Stream, at float64, prompts []Prompt, opts Options) (*Stream, error) {
	started := time.Now()
	if opts.TargetDuration <= 0 {
		return nil, ErrResizeUnsupported
	}
	if prev == nil || len(prev.Data) == 0 {
		return nil, ErrNoStream
	}
	if err := c.validate(prompts, opts); err != nil {
		return nil, err
	}

	at = math.Min(math.Max(at, prev.Offset), prev.Duration)
	k := prev.PromptAt(at)

	keepUntil := at
	next := 0
	if k >= 0 {
		keepUntil = math.Max(at, prev.TimeMap[k].AudioEnd)
		next = prev.TimeMap[k].Index + 1
		if prev.TimeMap[k].Index >= len(prompts) {
			return nil, fmt.Errorf("%w: time map references prompt %d of %d", ErrInvalidPrompt, prev.TimeMap[k].Index, len(prompts))
		}
	} else if len(prev.TimeMap) > 0 {
		keepUntil = math.Max(at, prev.TimeMap[0].AudioStart)
	}
	keepUntil = math.Min(keepUntil, prev.Duration)

	var head []byte
	offset, start := at, at
	if keepUntil > at {
		end := prev.ByteAt(keepUntil)
		aligned := c.aligner.Align(prev.Data, prev.ByteAt(at))
		start = prev.TimeAt(end)
		offset = start
		if aligned < end {
			head = append([]byte(nil), prev.Data[aligned:end]...)
			offset = prev.TimeAt(aligned)
		}
	}

	all := slotsFor(prompts, c.wordsPerSecond)
	var slots []slot
	if k >= 0 {
		cur := all[prev.TimeMap[k].Index]
		spent := math.Max(0, start-prev.TimeMap[k].AudioEnd)
		cur.retained = true
		cur.pause = math.Max(0, cur.pause+cur.speak-spent)
		cur.speak = 0
		if cur.ceiling >= 0 {
			cur.ceiling = math.Max(0, cur.ceiling-spent)
		}
		slots = append(slots, cur)
	}
	slots = append(slots, all[next:]...)

	l := layout{start: start, finalSilence: opts.FinalSilence}
	p, buffers, err := c.resolve(ctx, slots, l, opts.targetTotal(), c.clipEstimates(prompts))
	if err != nil {
		metrics.ComposeErrors.Inc()
		return nil, fmt.Errorf("compose remainder: %w", err)
	}

	entries := p.entries
	if len(head) > 0 {
		buffers[retainedKey] = head
		entries = append([]Entry{{
			Kind:     KindRetained,
			Key:      retainedKey,
			Duration: float64(len(head)) / float64(c.bytesPerSecond),
			Size:     len(head),
		}}, entries...)
	}

	data, err := Splice(entries, buffers)
	if err != nil {
		metrics.ComposeErrors.Inc()
		return nil, err
	}

	timeMap := make([]TimeMapEntry, 0, k+1+len(p.timeMap))
	timeMap = append(timeMap, prev.TimeMap[:k+1]...)
	if k >= 0 {
		timeMap[k].SlotEnd = p.carryEnd
	}
	timeMap = append(timeMap, p.timeMap...)

	stream := &Stream{
		Data:           data,
		Offset:         offset,
		Duration:       p.end,
		Preamble:       prev.Preamble,
		BytesPerSecond: c.bytesPerSecond,
		TimeMap:        timeMap,
		Entries:        entries,
	}

	metrics.ComposeDuration.Observe(time.Since(started).Seconds())
	c.logger.Info("remainder composed",
		slog.Float64("at", at),
		slog.Float64("offset", offset),
		slog.Int("retained_bytes", len(head)),
		slog.Float64("duration", stream.Duration),
		slog.Float64("target", opts.targetTotal()),
	)
	return stream, nil
}

// resolve alternates planning and fetching until every planned asset has
// been attempted. The first round plans with estimates only (the dry run);
// later rounds use real durations len/bytesPerSecond. Assets that failed
// non-critically drop out of the plan.
func (c *Compositor) resolve(ctx context.Context, slots []slot, l layout, targetEnd float64, clipEstimate map[string]float64) (plan, map[string][]byte, error) {
	buffers := make(map[string][]byte)
	attempted := make(map[string]bool)
	final := false

	dur := func(ref asset.Ref, nominal float64) (float64, bool) {
		if data, ok := buffers[ref.Key]; ok {
			return float64(len(data)) / float64(c.bytesPerSecond), true
		}
		if attempted[ref.Key] || final {
			return 0, false
		}
		return nominal, true
	}

	for round := 0; round < maxRounds; round++ {
		p := c.pass(slots, l, targetEnd, clipEstimate, dur)

		var missing []asset.Ref
		for _, r := range p.refs() {
			if !attempted[r.Key] {
				missing = append(missing, r)
			}
		}
		if len(missing) == 0 {
			c.fillSizes(p.entries, buffers)
			return p, buffers, nil
		}

		fetched, err := c.fetcher.FetchAll(ctx, missing)
		if err != nil {
			return plan{}, nil, err
		}
		for _, r := range missing {
			attempted[r.Key] = true
		}
		for k, v := range fetched {
			buffers[k] = v
		}
	}

	final = true
	p := c.pass(slots, l, targetEnd, clipEstimate, dur)
	c.fillSizes(p.entries, buffers)
	return p, buffers, nil
}

// pass plans once, expanding pauses toward targetEnd when it is set.
func (c *Compositor) pass(slots []slot, l layout, targetEnd float64, clipEstimate map[string]float64, dur durationFunc) plan {
	base := build(slots, l, nil, c.toneEstimate, clipEstimate, dur)
	if targetEnd <= 0 || targetEnd <= base.end {
		return base
	}
	extra := expansion(slots, targetEnd-base.end)
	return build(slots, l, extra, c.toneEstimate, clipEstimate, dur)
}

func (c *Compositor) fillSizes(entries []Entry, buffers map[string][]byte) {
	for i := range entries {
		entries[i].Size = len(buffers[entries[i].Key])
	}
}

func (c *Compositor) clipEstimates(prompts []Prompt) map[string]float64 {
	out := make(map[string]float64, len(prompts))
	for _, p := range prompts {
		if p.AudioRef != "" {
			out[p.AudioRef] = estimateSpeech(p.Text, c.wordsPerSecond)
		}
	}
	return out
}

func (c *Compositor) validate(prompts []Prompt, opts Options) error {
	if len(prompts) == 0 {
		return ErrNoPrompts
	}
	for i, p := range prompts {
		if p.ID == "" {
			return fmt.Errorf("%w: prompt %d has no id", ErrInvalidPrompt, i)
		}
		if p.SilenceAfter < 0 || p.SilenceMax < 0 {
			return fmt.Errorf("%w: prompt %s has a negative pause", ErrInvalidPrompt, p.ID)
		}
	}
	if c.bytesPerSecond <= 0 {
		return fmt.Errorf("%w: bytes per second must be positive", ErrInvalidOptions)
	}
	return opts.validate()
}

// estimateSpeech estimates speaking time from the word count, at least one
// second for any non-empty text.
func estimateSpeech(text string, wordsPerSecond float64) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	if wordsPerSecond <= 0 {
		wordsPerSecond = DefaultWordsPerSecond
	}
	return math.Max(1, float64(words)/wordsPerSecond)
}
