package compose

import (
	"math"

	"github.com/maauso/guided-audio/internal/asset"
	"github.com/maauso/guided-audio/internal/silence"
)

// slot is one prompt as the planner sees it.
type slot struct {
	index   int
	id      string
	clipKey string
	// speak is the estimated speaking time of a prompt without a clip; it is
	// spent as silence so the text stays on screen long enough to read.
	speak      float64
	pause      float64
	expandable bool
	ceiling    float64 // total pause cap; <0 means none
	// retained slots belong to a prompt whose clip is already in the retained
	// head of a resized stream; only the rest of its pause is planned.
	retained bool
}

// layout describes the frame around the prompt slots.
type layout struct {
	start        float64 // absolute time of the first planned entry
	opening      bool
	preRoll      float64
	preamble     float64
	finalSilence float64
}

// durationFunc resolves the duration of an asset. nominal is the planner's
// best guess; ok=false drops the entry from the plan.
type durationFunc func(ref asset.Ref, nominal float64) (seconds float64, ok bool)

// plan is the result of one planning pass.
type plan struct {
	entries  []Entry
	timeMap  []TimeMapEntry
	end      float64 // absolute end time
	carryEnd float64 // slot end of the retained slot, if any
}

// refs returns the asset references of every planned entry.
func (p plan) refs() []asset.Ref {
	out := make([]asset.Ref, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, asset.Ref{Kind: e.Kind, Key: e.Key})
	}
	return out
}

// slotsFor converts prompts to planner slots.
func slotsFor(prompts []Prompt, words float64) []slot {
	slots := make([]slot, 0, len(prompts))
	for i, p := range prompts {
		s := slot{
			index:      i,
			id:         p.ID,
			clipKey:    p.AudioRef,
			pause:      p.SilenceAfter,
			expandable: p.Expandable,
			ceiling:    -1,
		}
		if p.SilenceMax > 0 {
			s.ceiling = p.SilenceMax
		}
		if p.AudioRef == "" {
			s.speak = estimateSpeech(p.Text, words)
		}
		slots = append(slots, s)
	}
	return slots
}

// build lays out one pass. extra holds per-slot pause expansion.
func build(slots []slot, l layout, extra []float64, toneEstimate float64, clipEstimate map[string]float64, dur durationFunc) plan {
	var p plan
	cursor := l.start

	add := func(kind asset.Kind, key string, nominal float64) {
		d, ok := dur(asset.Ref{Kind: kind, Key: key}, nominal)
		if !ok {
			return
		}
		p.entries = append(p.entries, Entry{Kind: kind, Key: key, Duration: d})
		cursor += d
	}
	addSilence := func(seconds float64) {
		for _, b := range silence.Decompose(seconds) {
			add(asset.KindSilence, b.Key(), b.Seconds)
		}
	}

	if l.opening {
		addSilence(l.preRoll)
		add(asset.KindTone, asset.OpeningTone, toneEstimate)
		// Pad the tone ring-out up to the preamble; rounding up keeps the first
		// prompt from starting early.
		addSilence(silence.RoundUp(math.Max(0, l.start+l.preamble-cursor)))
	}

	for i, s := range slots {
		start := cursor
		if s.clipKey != "" && !s.retained {
			add(asset.KindClip, s.clipKey, clipEstimate[s.clipKey])
		}
		end := cursor

		pause := s.pause + s.speak
		if extra != nil {
			pause += extra[i]
		}
		addSilence(pause)

		if s.retained {
			p.carryEnd = cursor
			continue
		}
		p.timeMap = append(p.timeMap, TimeMapEntry{
			PromptID:   s.id,
			Index:      s.index,
			AudioStart: start,
			AudioEnd:   end,
			SlotEnd:    cursor,
		})
	}

	addSilence(l.finalSilence)
	add(asset.KindTone, asset.ClosingTone, toneEstimate)

	p.end = cursor
	return p
}

// expansion distributes extra seconds across expandable slots, equal shares
// first, then water-filling whatever capped slots could not absorb.
func expansion(slots []slot, extra float64) []float64 {
	out := make([]float64, len(slots))
	if extra <= 0 {
		return out
	}

	var open []int
	for i, s := range slots {
		if s.expandable && (s.ceiling < 0 || s.ceiling > s.pause) {
			open = append(open, i)
		}
	}

	remaining := extra
	for remaining > 1e-9 && len(open) > 0 {
		share := remaining / float64(len(open))
		var next []int
		for _, i := range open {
			give := share
			if c := slots[i].ceiling; c >= 0 {
				room := math.Max(0, c-slots[i].pause-out[i])
				if room < give {
					give = room
				}
			}
			out[i] += give
			remaining -= give
			if c := slots[i].ceiling; c < 0 || c-slots[i].pause-out[i] > 1e-9 {
				next = append(next, i)
			}
		}
		open = next
	}
	return out
}
