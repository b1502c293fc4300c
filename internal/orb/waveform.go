// Package orb computes the orb animation: a breathing scale and a glowing halo whose rhythm depends on the
// conversation state.
package orb

import (
	"math"

	"github.com/MegaGrindStone/polaris/internal/models"
)

// Waveform describes the oscillation of the orb scale as Baseline + Amplitude*sin(Frequency*t).
type Waveform struct {
	Baseline  float64
	Amplitude float64
	Frequency float64
}

// Frame is the visual state of the orb at one instant.
type Frame struct {
	State       models.OrbState `json:"state"`
	Scale       float64         `json:"scale"`
	HaloScale   float64         `json:"haloScale"`
	HaloOpacity float64         `json:"haloOpacity"`
}

const (
	haloGrowth        = 1.1
	haloOpacityActive = 0.8
	haloOpacityCalm   = 0.3
)

var waveforms = map[models.OrbState]Waveform{
	// Gentle breathing.
	models.OrbIdle: {Baseline: 1, Amplitude: 0.02, Frequency: 0.5},
	// Alert posture, barely moving.
	models.OrbListening: {Baseline: 1.1, Amplitude: 0.01, Frequency: 1},
	// Rapid pulsing.
	models.OrbThinking: {Baseline: 1, Amplitude: 0.05, Frequency: 5},
	// Moderate beat.
	models.OrbSpeaking: {Baseline: 1, Amplitude: 0.08, Frequency: 2},
}

// WaveformFor returns the waveform of the given state. Unknown states breathe like Idle.
func WaveformFor(state models.OrbState) Waveform {
	w, ok := waveforms[state]
	if !ok {
		return waveforms[models.OrbIdle]
	}
	return w
}

// Scale evaluates the waveform at time t.
func (w Waveform) Scale(t float64) float64 {
	return w.Baseline + math.Sin(t*w.Frequency)*w.Amplitude
}

// At computes the frame for state at time t. It holds no state: the same arguments always give the same frame.
func At(state models.OrbState, t float64) Frame {
	scale := WaveformFor(state).Scale(t)

	opacity := haloOpacityCalm
	if state == models.OrbThinking {
		opacity = haloOpacityActive
	}

	return Frame{
		State:       state,
		Scale:       scale,
		HaloScale:   scale * haloGrowth,
		HaloOpacity: opacity,
	}
}
