package compose

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/guided-audio/internal/asset"
	"github.com/maauso/guided-audio/internal/frame"
	"github.com/maauso/guided-audio/internal/silence"
)

const testBPS = 100

// mapSource serves synthetic assets whose byte length encodes their duration.
type mapSource struct {
	mu      sync.Mutex
	assets  map[string][]byte
	fetched []string
}

func newMapSource() *mapSource {
	s := &mapSource{assets: make(map[string][]byte)}
	for i, secs := range silence.Blocks {
		s.put(silence.Block{Seconds: secs}.Key(), secs, byte(0x10+i))
	}
	s.put(asset.OpeningTone, 2, 0xA0)
	s.put(asset.ClosingTone, 2, 0xA1)
	return s
}

func (s *mapSource) put(key string, seconds float64, fill byte) {
	s.assets[key] = bytes.Repeat([]byte{fill}, int(seconds*testBPS))
}

func (s *mapSource) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, key)
	data, ok := s.assets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", asset.ErrNotFound, key)
	}
	return data, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCompositor(src *mapSource, opts ...Option) *Compositor {
	fetcher := asset.NewFetcher(src, quietLogger())
	return New(fetcher, testBPS, quietLogger(), opts...)
}

func defaultOptions() Options {
	return Options{PreRollDelay: 1, Preamble: 8, FinalSilence: 1}
}

func twoPrompts() []Prompt {
	return []Prompt{
		{ID: "p1", Text: "breathe in slowly", AudioRef: "clips/p1.mp3", SilenceAfter: 6},
		{ID: "p2", Text: "and breathe out", AudioRef: "clips/p2.mp3", SilenceAfter: 6},
	}
}

func TestCompose_FixedLayout(t *testing.T) {
	src := newMapSource()
	src.put("clips/p1.mp3", 4, 0x01)
	src.put("clips/p2.mp3", 4, 0x02)
	c := newTestCompositor(src)

	stream, err := c.Compose(context.Background(), twoPrompts(), defaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 31.0, stream.Duration, 1e-6)
	assert.Equal(t, 31*testBPS, len(stream.Data))
	assert.Zero(t, stream.Offset)

	require.Len(t, stream.TimeMap, 2)
	assert.Equal(t, "p1", stream.TimeMap[0].PromptID)
	assert.InDelta(t, 8.0, stream.TimeMap[0].AudioStart, 1e-6)
	assert.InDelta(t, 12.0, stream.TimeMap[0].AudioEnd, 1e-6)
	assert.InDelta(t, 18.0, stream.TimeMap[0].SlotEnd, 1e-6)
	assert.InDelta(t, 18.0, stream.TimeMap[1].AudioStart, 1e-6)
	assert.InDelta(t, 28.0, stream.TimeMap[1].SlotEnd, 1e-6)

	// The first clip's bytes sit exactly at its audio start.
	assert.Equal(t, byte(0x01), stream.Data[stream.ByteAt(8)])
	assert.Equal(t, byte(0x02), stream.Data[stream.ByteAt(18)])
	assert.Equal(t, byte(0xA1), stream.Data[len(stream.Data)-1])
}

func TestCompose_LengthEqualsEntrySizes(t *testing.T) {
	src := newMapSource()
	src.put("clips/p1.mp3", 3.37, 0x01)
	src.put("clips/p2.mp3", 7.91, 0x02)
	c := newTestCompositor(src)

	prompts := twoPrompts()
	prompts[0].SilenceAfter = 2.3
	prompts[1].SilenceAfter = 0.7

	stream, err := c.Compose(context.Background(), prompts, defaultOptions())
	require.NoError(t, err)

	total, sum := 0, 0.0
	for _, e := range stream.Entries {
		total += e.Size
		sum += e.Duration
	}
	assert.Equal(t, total, len(stream.Data))
	assert.InDelta(t, sum, stream.Duration, 1e-6)
}

func TestCompose_TimeMapOrderedAndAfterPreamble(t *testing.T) {
	src := newMapSource()
	prompts := make([]Prompt, 0, 5)
	for i := range 5 {
		key := fmt.Sprintf("clips/%d.mp3", i)
		src.put(key, 1.5+float64(i), byte(i+1))
		prompts = append(prompts, Prompt{ID: fmt.Sprint(i), Text: "x", AudioRef: key, SilenceAfter: float64(i)})
	}
	c := newTestCompositor(src)

	opts := defaultOptions()
	opts.Preamble = 3.3
	stream, err := c.Compose(context.Background(), prompts, opts)
	require.NoError(t, err)

	require.Len(t, stream.TimeMap, 5)
	assert.GreaterOrEqual(t, stream.TimeMap[0].AudioStart, opts.Preamble)
	for i, e := range stream.TimeMap {
		assert.LessOrEqual(t, e.AudioStart, e.AudioEnd)
		assert.LessOrEqual(t, e.AudioEnd, e.SlotEnd)
		if i > 0 {
			assert.LessOrEqual(t, stream.TimeMap[i-1].SlotEnd, e.AudioStart)
		}
	}
}

func TestCompose_CriticalClipMissing(t *testing.T) {
	src := newMapSource()
	src.put("clips/p1.mp3", 4, 0x01)
	c := newTestCompositor(src)

	stream, err := c.Compose(context.Background(), twoPrompts(), defaultOptions())

	require.Error(t, err)
	assert.Nil(t, stream)
	assert.ErrorIs(t, err, asset.ErrCriticalAsset)
}

func TestCompose_MissingToneIsOmitted(t *testing.T) {
	src := newMapSource()
	src.put("clips/p1.mp3", 4, 0x01)
	src.put("clips/p2.mp3", 4, 0x02)
	delete(src.assets, asset.ClosingTone)
	c := newTestCompositor(src)

	stream, err := c.Compose(context.Background(), twoPrompts(), defaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 29.0, stream.Duration, 1e-6)
	for _, e := range stream.Entries {
		assert.NotEqual(t, asset.ClosingTone, e.Key)
	}
}

func TestCompose_TextOnlyPromptHoldsReadingTime(t *testing.T) {
	src := newMapSource()
	c := newTestCompositor(src)

	prompts := []Prompt{{ID: "t", Text: "one two three four five", SilenceAfter: 1}}
	stream, err := c.Compose(context.Background(), prompts, defaultOptions())
	require.NoError(t, err)

	require.Len(t, stream.TimeMap, 1)
	e := stream.TimeMap[0]
	assert.InDelta(t, e.AudioStart, e.AudioEnd, 1e-6)
	// five words at 2.5 words per second plus the one second pause
	assert.InDelta(t, 3.0, e.SlotEnd-e.AudioStart, 1e-6)
}

func TestCompose_ActualDurationsReplaceEstimates(t *testing.T) {
	src := newMapSource()
	// The text estimates to 1s; the real clip is 9.3s.
	src.put("clips/long.mp3", 9.3, 0x01)
	c := newTestCompositor(src)

	prompts := []Prompt{{ID: "a", Text: "hi", AudioRef: "clips/long.mp3", SilenceAfter: 2}}
	stream, err := c.Compose(context.Background(), prompts, defaultOptions())
	require.NoError(t, err)

	e := stream.TimeMap[0]
	assert.InDelta(t, 9.3, e.AudioEnd-e.AudioStart, 1e-6)
	assert.InDelta(t, 2.0, e.SlotEnd-e.AudioEnd, 1e-6)
}

func TestCompose_ExpandsTowardTarget(t *testing.T) {
	src := newMapSource()
	prompts := make([]Prompt, 0, 3)
	for i := range 3 {
		key := fmt.Sprintf("clips/%d.mp3", i)
		src.put(key, 10, byte(i+1))
		prompts = append(prompts, Prompt{ID: fmt.Sprint(i), Text: "x", AudioRef: key, SilenceAfter: 10, Expandable: true})
	}
	c := newTestCompositor(src)

	opts := defaultOptions()
	opts.TargetDuration = 600
	stream, err := c.Compose(context.Background(), prompts, opts)
	require.NoError(t, err)

	assert.InDelta(t, 608.0, stream.Duration, 0.5*3)
	for _, e := range stream.TimeMap {
		assert.InDelta(t, 189.0, e.SlotEnd-e.AudioEnd, 0.5)
	}
}

func TestCompose_ExpansionRespectsCeilings(t *testing.T) {
	src := newMapSource()
	src.put("clips/a.mp3", 5, 0x01)
	src.put("clips/b.mp3", 5, 0x02)
	c := newTestCompositor(src)

	prompts := []Prompt{
		{ID: "a", Text: "x", AudioRef: "clips/a.mp3", SilenceAfter: 5, Expandable: true, SilenceMax: 20},
		{ID: "b", Text: "x", AudioRef: "clips/b.mp3", SilenceAfter: 5, Expandable: true},
	}
	opts := defaultOptions()
	opts.TargetDuration = 200
	stream, err := c.Compose(context.Background(), prompts, opts)
	require.NoError(t, err)

	a, b := stream.TimeMap[0], stream.TimeMap[1]
	assert.InDelta(t, 20.0, a.SlotEnd-a.AudioEnd, 1e-6)
	assert.InDelta(t, 208.0, stream.Duration, 0.5)
	assert.Greater(t, b.SlotEnd-b.AudioEnd, 20.0)
}

func TestCompose_Validation(t *testing.T) {
	c := newTestCompositor(newMapSource())
	ctx := context.Background()

	_, err := c.Compose(ctx, nil, defaultOptions())
	assert.ErrorIs(t, err, ErrNoPrompts)

	_, err = c.Compose(ctx, []Prompt{{Text: "x"}}, defaultOptions())
	assert.ErrorIs(t, err, ErrInvalidPrompt)

	_, err = c.Compose(ctx, []Prompt{{ID: "a", SilenceAfter: -1}}, defaultOptions())
	assert.ErrorIs(t, err, ErrInvalidPrompt)

	_, err = c.Compose(ctx, []Prompt{{ID: "a"}}, Options{Preamble: -1})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func expandableSession(src *mapSource) []Prompt {
	prompts := make([]Prompt, 0, 3)
	for i := range 3 {
		key := fmt.Sprintf("clips/%d.mp3", i)
		src.put(key, 10, byte(i+1))
		prompts = append(prompts, Prompt{ID: fmt.Sprint(i), Text: "x", AudioRef: key, SilenceAfter: 10, Expandable: true})
	}
	return prompts
}

func TestComposeRemainder_ExtendsDuringPause(t *testing.T) {
	src := newMapSource()
	prompts := expandableSession(src)
	c := newTestCompositor(src)
	ctx := context.Background()

	opts := defaultOptions()
	opts.TargetDuration = 600
	prev, err := c.Compose(ctx, prompts, opts)
	require.NoError(t, err)

	at := opts.Preamble + 300
	opts.TargetDuration = 900
	next, err := c.ComposeRemainder(ctx, prev, at, prompts, opts)
	require.NoError(t, err)

	assert.InDelta(t, at, next.Offset, 1e-6)
	assert.InDelta(t, opts.Preamble+900, next.Duration, 1.0)
	assert.InDelta(t, 600.0, next.Duration-next.Offset, 1.0)
	assert.Equal(t, len(next.Data), next.ByteAt(next.Duration))

	require.Len(t, next.TimeMap, 3)
	// Prompts already played keep their original positions.
	assert.Equal(t, prev.TimeMap[0], next.TimeMap[0])
	assert.InDelta(t, prev.TimeMap[1].AudioStart, next.TimeMap[1].AudioStart, 1e-6)
	assert.Greater(t, next.TimeMap[1].SlotEnd, prev.TimeMap[1].SlotEnd)
	assert.InDelta(t, next.TimeMap[1].SlotEnd, next.TimeMap[2].AudioStart, 1e-6)
}

func TestComposeRemainder_RetainsCurrentClip(t *testing.T) {
	src := newMapSource()
	prompts := expandableSession(src)
	c := newTestCompositor(src, WithAligner(frame.FixedAligner{FrameSize: 40}))
	ctx := context.Background()

	opts := defaultOptions()
	opts.TargetDuration = 600
	prev, err := c.Compose(ctx, prompts, opts)
	require.NoError(t, err)

	// Three seconds into the first clip.
	clip := prev.TimeMap[0]
	at := clip.AudioStart + 3.05
	opts.TargetDuration = 300
	next, err := c.ComposeRemainder(ctx, prev, at, prompts, opts)
	require.NoError(t, err)

	require.NotEmpty(t, next.Entries)
	assert.Equal(t, KindRetained, next.Entries[0].Kind)
	assert.GreaterOrEqual(t, next.Offset, at)
	assert.Less(t, next.Offset-at, 40.0/testBPS)

	// The retained head is the tail of the first clip, byte for byte.
	head := next.Entries[0].Size
	assert.Equal(t, prev.Data[prev.ByteAt(next.Offset):prev.ByteAt(clip.AudioEnd)], next.Data[:head])
	assert.InDelta(t, clip.AudioEnd, next.TimeAt(head), 1e-6)

	assert.InDelta(t, opts.Preamble+300, next.Duration, 1.0)
	assert.Equal(t, clip.AudioStart, next.TimeMap[0].AudioStart)
}

func TestComposeRemainder_NoOpeningTone(t *testing.T) {
	src := newMapSource()
	prompts := expandableSession(src)
	c := newTestCompositor(src)
	ctx := context.Background()

	opts := defaultOptions()
	opts.TargetDuration = 600
	prev, err := c.Compose(ctx, prompts, opts)
	require.NoError(t, err)

	next, err := c.ComposeRemainder(ctx, prev, 100, prompts, opts)
	require.NoError(t, err)

	for _, e := range next.Entries {
		assert.NotEqual(t, asset.OpeningTone, e.Key)
	}
	assert.Equal(t, asset.ClosingTone, next.Entries[len(next.Entries)-1].Key)
}

func TestComposeRemainder_RequiresTarget(t *testing.T) {
	src := newMapSource()
	src.put("clips/p1.mp3", 4, 0x01)
	src.put("clips/p2.mp3", 4, 0x02)
	c := newTestCompositor(src)
	ctx := context.Background()

	prev, err := c.Compose(ctx, twoPrompts(), defaultOptions())
	require.NoError(t, err)

	_, err = c.ComposeRemainder(ctx, prev, 10, twoPrompts(), defaultOptions())
	assert.ErrorIs(t, err, ErrResizeUnsupported)

	opts := defaultOptions()
	opts.TargetDuration = 100
	_, err = c.ComposeRemainder(ctx, nil, 10, twoPrompts(), opts)
	assert.ErrorIs(t, err, ErrNoStream)
}

func TestEstimateSpeech(t *testing.T) {
	assert.Zero(t, estimateSpeech("", 2.5))
	assert.Zero(t, estimateSpeech("   ", 2.5))
	assert.InDelta(t, 1.0, estimateSpeech("hi", 2.5), 1e-9)
	assert.InDelta(t, 4.0, estimateSpeech("a b c d e f g h i j", 2.5), 1e-9)
}
