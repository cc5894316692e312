package tui

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
)

const (
	sampleRate = beep.SampleRate(44100)

	humBaseFreq  = 55.0
	humRangeFreq = 110.0
	humIdleLevel = 0.15
	humVolume    = 0.12
	musicVolume  = 0.5
)

// Audio plays the music loop and the engine hum. A nil *Audio is silent.
type Audio struct {
	mu     sync.Mutex
	mixer  *beep.Mixer
	hum    *HumGenerator
	music  beep.StreamSeekCloser
	closed bool
}

// NewAudio opens the speaker and starts the hum, plus the music loop when
// musicFile names a WAV file
func NewAudio(musicFile string) (*Audio, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("failed to open speaker: %w", err)
	}

	a := &Audio{
		mixer: &beep.Mixer{},
		hum:   NewHumGenerator(sampleRate),
	}
	a.mixer.Add(newVolume(a.hum, humVolume))

	if musicFile != "" {
		if err := a.loadMusic(musicFile); err != nil {
			speaker.Close()
			return nil, err
		}
	}

	speaker.Play(a.mixer)
	return a, nil
}

func (a *Audio) loadMusic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open music: %w", err)
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode music %s: %w", path, err)
	}
	a.music = streamer

	var loop beep.Streamer = beep.Loop(-1, streamer)
	if format.SampleRate != sampleRate {
		loop = beep.Resample(4, format.SampleRate, sampleRate, loop)
	}
	a.mixer.Add(newVolume(loop, musicVolume))
	return nil
}

// SetSpeed sets the hum pitch from a speed fraction in [0,1]
func (a *Audio) SetSpeed(fraction float64) {
	if a == nil {
		return
	}
	a.hum.SetLevel(fraction)
}

// Chime plays the finish jingle
func (a *Audio) Chime() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	speaker.Lock()
	a.mixer.Add(newVolume(beep.Seq(
		NewTone(sampleRate, 659.25, 120*time.Millisecond),
		NewTone(sampleRate, 880, 240*time.Millisecond),
	), 0.3))
	speaker.Unlock()
}

func (a *Audio) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true

	speaker.Clear()
	speaker.Close()
	if a.music != nil {
		a.music.Close()
	}
}

// HumGenerator is an endless engine tone whose pitch and loudness follow
// the level set by SetLevel
type HumGenerator struct {
	sr    beep.SampleRate
	level atomic.Uint64
	phase float64
}

func NewHumGenerator(sr beep.SampleRate) *HumGenerator {
	return &HumGenerator{sr: sr}
}

// SetLevel clamps fraction into [0,1]
func (g *HumGenerator) SetLevel(fraction float64) {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	g.level.Store(math.Float64bits(fraction))
}

func (g *HumGenerator) Level() float64 {
	return math.Float64frombits(g.level.Load())
}

func (g *HumGenerator) Stream(samples [][2]float64) (n int, ok bool) {
	level := g.Level()
	freq := humBaseFreq + humRangeFreq*level
	amplitude := humIdleLevel + (1-humIdleLevel)*level

	for i := range samples {
		// saw plus its fundamental gives a rough engine note
		saw := 2*g.phase - 1
		sample := amplitude * (0.6*saw + 0.4*math.Sin(2*math.Pi*g.phase))

		samples[i][0] = sample
		samples[i][1] = sample

		g.phase += freq / float64(g.sr)
		g.phase -= math.Floor(g.phase)
	}
	return len(samples), true
}

func (g *HumGenerator) Err() error { return nil }

// tone is a sine with a short release so it does not click
type tone struct {
	sr       beep.SampleRate
	freq     float64
	pos      int
	duration int
}

// NewTone returns a finite sine streamer
func NewTone(sr beep.SampleRate, freq float64, d time.Duration) beep.Streamer {
	return &tone{sr: sr, freq: freq, duration: sr.N(d)}
}

func (t *tone) Stream(samples [][2]float64) (n int, ok bool) {
	release := t.sr.N(30 * time.Millisecond)
	for i := range samples {
		if t.pos >= t.duration {
			return i, i > 0
		}
		vol := 1.0
		if left := t.duration - t.pos; left < release {
			vol = float64(left) / float64(release)
		}
		sample := vol * math.Sin(2*math.Pi*t.freq*float64(t.pos)/float64(t.sr))
		samples[i][0] = sample
		samples[i][1] = sample
		t.pos++
	}
	return len(samples), true
}

func (t *tone) Err() error { return nil }

// newVolume scales a stream linearly; zero or less is silent
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}
