package orb_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/MegaGrindStone/polaris/internal/orb"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWaveformOrdering(t *testing.T) {
	idle := orb.WaveformFor(models.OrbIdle)
	listening := orb.WaveformFor(models.OrbListening)
	thinking := orb.WaveformFor(models.OrbThinking)
	speaking := orb.WaveformFor(models.OrbSpeaking)

	if !(idle.Frequency < speaking.Frequency && speaking.Frequency < thinking.Frequency) {
		t.Errorf("frequencies out of order: idle %v, speaking %v, thinking %v",
			idle.Frequency, speaking.Frequency, thinking.Frequency)
	}
	for _, w := range []orb.Waveform{idle, thinking, speaking} {
		if listening.Baseline <= w.Baseline {
			t.Errorf("listening baseline %v should exceed %v", listening.Baseline, w.Baseline)
		}
		if listening.Amplitude >= w.Amplitude {
			t.Errorf("listening amplitude %v should be below %v", listening.Amplitude, w.Amplitude)
		}
	}
}

func TestAt(t *testing.T) {
	tests := []struct {
		name        string
		state       models.OrbState
		t           float64
		wantScale   float64
		wantOpacity float64
	}{
		{name: "Idle at zero", state: models.OrbIdle, t: 0, wantScale: 1, wantOpacity: 0.3},
		{name: "Listening at zero", state: models.OrbListening, t: 0, wantScale: 1.1, wantOpacity: 0.3},
		{name: "Thinking peak", state: models.OrbThinking, t: math.Pi / 10, wantScale: 1.05, wantOpacity: 0.8},
		{name: "Speaking peak", state: models.OrbSpeaking, t: math.Pi / 4, wantScale: 1.08, wantOpacity: 0.3},
		{name: "Unknown state", state: models.OrbState("??"), t: 0, wantScale: 1, wantOpacity: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := orb.At(tt.state, tt.t)
			if math.Abs(f.Scale-tt.wantScale) > 1e-9 {
				t.Errorf("Scale = %v, want %v", f.Scale, tt.wantScale)
			}
			if math.Abs(f.HaloScale-tt.wantScale*1.1) > 1e-9 {
				t.Errorf("HaloScale = %v, want %v", f.HaloScale, tt.wantScale*1.1)
			}
			if f.HaloOpacity != tt.wantOpacity {
				t.Errorf("HaloOpacity = %v, want %v", f.HaloOpacity, tt.wantOpacity)
			}
		})
	}
}

type frameRecorder struct {
	mu     sync.Mutex
	frames []orb.Frame
}

func (r *frameRecorder) render(f orb.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *frameRecorder) snapshot() []orb.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orb.Frame(nil), r.frames...)
}

func waitFrames(t *testing.T, r *frameRecorder, n int) []orb.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fs := r.snapshot(); len(fs) >= n {
			return fs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames", n)
	return nil
}

func TestDriverRendersFrames(t *testing.T) {
	rec := &frameRecorder{}
	d := orb.NewDriver(time.Millisecond, rec.render)

	d.Start(models.OrbThinking)
	frames := waitFrames(t, rec, 3)
	d.Stop()

	for i, f := range frames[:3] {
		want := orb.At(models.OrbThinking, float64(i+1)*orb.DefaultStep)
		if math.Abs(f.Scale-want.Scale) > 1e-9 {
			t.Errorf("frame %d scale = %v, want %v", i, f.Scale, want.Scale)
		}
	}
}

func TestDriverRestartResetsPhase(t *testing.T) {
	rec := &frameRecorder{}
	d := orb.NewDriver(time.Millisecond, rec.render)

	d.Start(models.OrbIdle)
	waitFrames(t, rec, 5)
	d.Start(models.OrbSpeaking)
	defer d.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range rec.snapshot() {
			if f.State != models.OrbSpeaking {
				continue
			}
			want := orb.At(models.OrbSpeaking, orb.DefaultStep)
			if math.Abs(f.Scale-want.Scale) > 1e-9 {
				t.Fatalf("first speaking frame scale = %v, want %v", f.Scale, want.Scale)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no speaking frame rendered")
}

func TestDriverStopIsIdempotent(t *testing.T) {
	rec := &frameRecorder{}
	d := orb.NewDriver(time.Millisecond, rec.render)

	d.Stop()
	d.Start(models.OrbListening)
	d.Stop()
	d.Stop()

	n := len(rec.snapshot())
	time.Sleep(10 * time.Millisecond)
	if got := len(rec.snapshot()); got != n {
		t.Errorf("frames rendered after Stop: before %d, after %d", n, got)
	}
}

func TestDriverStartAfterClose(t *testing.T) {
	rec := &frameRecorder{}
	d := orb.NewDriver(time.Millisecond, rec.render)

	d.Start(models.OrbIdle)
	waitFrames(t, rec, 1)
	d.Close()
	d.Start(models.OrbThinking)
	d.Close()

	n := len(rec.snapshot())
	time.Sleep(10 * time.Millisecond)
	if got := len(rec.snapshot()); got != n {
		t.Errorf("frames rendered after Close: before %d, after %d", n, got)
	}
	for _, f := range rec.snapshot() {
		if f.State == models.OrbThinking {
			t.Fatal("Start after Close rendered a frame")
		}
	}
}
