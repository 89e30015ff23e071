package lavaflow

import (
	"sync"

	"github.com/lavaflow/lavaflow/lavalink"
)

// Derived filter parameters.
const (
	bassboostMax   = 5.0
	nightcoreRate  = 1.5
	vaporwavePitch = 0.5
	eightDRotation = 0.2
	slowmodeSpeed  = 0.8
	slowmodeRate   = 0.9
)

// Filters composes primitive filter blocks and derived toggles into the
// single payload a node accepts. Nodes have no partial filter updates, so
// every mutation pushes the whole composed payload through onChange.
type Filters struct {
	mu       sync.Mutex
	onChange func(lavalink.Filters)

	current   lavalink.Filters
	bassboost float64
	nightcore bool
	vaporwave bool
	eightD    bool
	slowmode  bool
}

// NewFilters creates a filter manager. onChange receives the full payload
// after every mutation; nil is allowed for detached use.
func NewFilters(onChange func(lavalink.Filters)) *Filters {
	if onChange == nil {
		onChange = func(lavalink.Filters) {}
	}
	return &Filters{onChange: onChange}
}

// Current returns the composed filter payload.
func (f *Filters) Current() lavalink.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Clear resets every primitive and derived toggle.
func (f *Filters) Clear() {
	f.mu.Lock()
	f.reset()
	payload := f.current
	f.mu.Unlock()
	f.onChange(payload)
}

// reset must be called with the lock held.
func (f *Filters) reset() {
	f.current = lavalink.Filters{}
	f.bassboost = 0
	f.nightcore = false
	f.vaporwave = false
	f.eightD = false
	f.slowmode = false
}

func (f *Filters) apply(mutate func()) {
	f.mu.Lock()
	mutate()
	payload := f.current
	f.mu.Unlock()
	f.onChange(payload)
}

// SetEqualizer sets the 15-band equalizer. Gains must be in [-0.25, 1.0].
func (f *Filters) SetEqualizer(eq lavalink.Equalizer) error {
	for band, gain := range eq {
		if gain < -0.25 || gain > 1.0 {
			return newValidationError("equalizer", "band %d gain %g out of range [-0.25, 1.0]", band, gain)
		}
	}
	f.apply(func() { f.current.Equalizer = &eq })
	return nil
}

// SetKaraoke sets the karaoke block; nil removes it.
func (f *Filters) SetKaraoke(k *lavalink.Karaoke) {
	f.apply(func() { f.current.Karaoke = k })
}

// SetTimescale sets the timescale block; nil removes it. Setting a
// timescale directly clears the nightcore/vaporwave/slowmode toggles.
func (f *Filters) SetTimescale(ts *lavalink.Timescale) {
	f.apply(func() {
		f.nightcore = false
		f.vaporwave = false
		f.slowmode = false
		f.current.Timescale = ts
	})
}

// SetTremolo sets the tremolo block; nil removes it.
func (f *Filters) SetTremolo(t *lavalink.Tremolo) {
	f.apply(func() { f.current.Tremolo = t })
}

// SetVibrato sets the vibrato block; nil removes it.
func (f *Filters) SetVibrato(v *lavalink.Vibrato) {
	f.apply(func() { f.current.Vibrato = v })
}

// SetRotation sets the rotation block; nil removes it. Clears the 8D toggle.
func (f *Filters) SetRotation(r *lavalink.Rotation) {
	f.apply(func() {
		f.eightD = false
		f.current.Rotation = r
	})
}

// SetDistortion sets the distortion block; nil removes it.
func (f *Filters) SetDistortion(d *lavalink.Distortion) {
	f.apply(func() { f.current.Distortion = d })
}

// SetChannelMix sets the channel-mix block; nil removes it.
func (f *Filters) SetChannelMix(m *lavalink.ChannelMix) {
	f.apply(func() { f.current.ChannelMix = m })
}

// SetLowPass sets the low-pass block; nil removes it.
func (f *Filters) SetLowPass(lp *lavalink.LowPass) {
	f.apply(func() { f.current.LowPass = lp })
}

// SetBassboost boosts all equalizer bands by the level v in [0, 5].
// 1 is neutral; 0 disables the boost.
func (f *Filters) SetBassboost(v float64) error {
	if v < 0 || v > bassboostMax {
		return newValidationError("bassboost", "%g out of range [0, %g]", v, bassboostMax)
	}
	f.apply(func() {
		f.bassboost = v
		if v == 0 {
			f.current.Equalizer = nil
			return
		}
		var eq lavalink.Equalizer
		gain := (v-1)*(1.25/9) - 0.25
		for band := range eq {
			eq[band] = gain
		}
		f.current.Equalizer = &eq
	})
	return nil
}

// Bassboost returns the current bassboost level, 0 when disabled.
func (f *Filters) Bassboost() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bassboost
}

// SetNightcore speeds playback up via timescale. Enabling it disables
// vaporwave and slowmode; the two pitch effects are mutually exclusive.
func (f *Filters) SetNightcore(enabled bool) {
	f.apply(func() {
		f.nightcore = enabled
		if enabled {
			f.vaporwave = false
			f.slowmode = false
			f.current.Timescale = &lavalink.Timescale{Speed: 1, Pitch: 1, Rate: nightcoreRate}
		} else {
			f.current.Timescale = nil
		}
	})
}

// Nightcore reports whether the nightcore toggle is active.
func (f *Filters) Nightcore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nightcore
}

// SetVaporwave pitches playback down via timescale. Enabling it disables
// nightcore and slowmode.
func (f *Filters) SetVaporwave(enabled bool) {
	f.apply(func() {
		f.vaporwave = enabled
		if enabled {
			f.nightcore = false
			f.slowmode = false
			f.current.Timescale = &lavalink.Timescale{Speed: 1, Pitch: vaporwavePitch, Rate: 1}
		} else {
			f.current.Timescale = nil
		}
	})
}

// Vaporwave reports whether the vaporwave toggle is active.
func (f *Filters) Vaporwave() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vaporwave
}

// SetSlowmode slows playback via timescale. Enabling it disables the pitch
// toggles.
func (f *Filters) SetSlowmode(enabled bool) {
	f.apply(func() {
		f.slowmode = enabled
		if enabled {
			f.nightcore = false
			f.vaporwave = false
			f.current.Timescale = &lavalink.Timescale{Speed: slowmodeSpeed, Pitch: 1, Rate: slowmodeRate}
		} else {
			f.current.Timescale = nil
		}
	})
}

// Slowmode reports whether the slowmode toggle is active.
func (f *Filters) Slowmode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slowmode
}

// Set8D pans audio around the listener via rotation.
func (f *Filters) Set8D(enabled bool) {
	f.apply(func() {
		f.eightD = enabled
		if enabled {
			f.current.Rotation = &lavalink.Rotation{RotationHz: eightDRotation}
		} else {
			f.current.Rotation = nil
		}
	})
}

// Is8D reports whether the 8D toggle is active.
func (f *Filters) Is8D() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eightD
}

// Presets available to ApplyPreset.
const (
	PresetGaming         = "gaming"
	PresetLofi           = "lofi"
	PresetParty          = "party"
	PresetKaraoke        = "karaoke"
	PresetKaraokeSoft    = "karaoke_soft"
	PresetBassboostHeavy = "bassboost_heavy"
)

// ApplyPreset clears the current filters and applies a named bundle.
// Unknown names are a validation error and leave the filters untouched.
func (f *Filters) ApplyPreset(name string) error {
	f.mu.Lock()
	switch name {
	case PresetGaming:
		f.reset()
		f.current.Timescale = &lavalink.Timescale{Speed: 1.05, Pitch: 1, Rate: 1}
		f.current.LowPass = &lavalink.LowPass{Smoothing: 12}
	case PresetLofi:
		f.reset()
		f.current.LowPass = &lavalink.LowPass{Smoothing: 20}
		f.current.Tremolo = &lavalink.Tremolo{Frequency: 0.3, Depth: 0.3}
	case PresetParty:
		f.reset()
		var eq lavalink.Equalizer
		eq[0], eq[1], eq[2] = 0.35, 0.3, 0.2
		f.current.Equalizer = &eq
		f.current.Timescale = &lavalink.Timescale{Speed: 1.1, Pitch: 1, Rate: 1}
	case PresetKaraoke:
		f.reset()
		f.current.Karaoke = &lavalink.Karaoke{Level: 1, MonoLevel: 1, FilterBand: 220, FilterWidth: 100}
	case PresetKaraokeSoft:
		f.reset()
		f.current.Karaoke = &lavalink.Karaoke{Level: 0.6, MonoLevel: 1, FilterBand: 220, FilterWidth: 100}
	case PresetBassboostHeavy:
		f.reset()
		f.bassboost = 4
		var eq lavalink.Equalizer
		gain := (4.0-1)*(1.25/9) - 0.25
		for band := range eq {
			eq[band] = gain
		}
		f.current.Equalizer = &eq
	default:
		f.mu.Unlock()
		return newValidationError("preset", "unknown preset %q", name)
	}
	payload := f.current
	f.mu.Unlock()
	f.onChange(payload)
	return nil
}

// snapshot returns the state needed to rebuild the manager.
func (f *Filters) snapshot() filtersSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filtersSnapshot{
		Current:   f.current,
		Bassboost: f.bassboost,
		Nightcore: f.nightcore,
		Vaporwave: f.vaporwave,
		EightD:    f.eightD,
		Slowmode:  f.slowmode,
	}
}

// restore rebuilds the manager state without emitting a change.
func (f *Filters) restore(s filtersSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s.Current
	f.bassboost = s.Bassboost
	f.nightcore = s.Nightcore
	f.vaporwave = s.Vaporwave
	f.eightD = s.EightD
	f.slowmode = s.Slowmode
}

// filtersSnapshot is the serializable state of a filter manager.
type filtersSnapshot struct {
	Current   lavalink.Filters `json:"current"`
	Bassboost float64          `json:"bassboost,omitempty"`
	Nightcore bool             `json:"nightcore,omitempty"`
	Vaporwave bool             `json:"vaporwave,omitempty"`
	EightD    bool             `json:"eightD,omitempty"`
	Slowmode  bool             `json:"slowmode,omitempty"`
}
