package lavaflow

import (
	"testing"

	"github.com/lavaflow/lavaflow/lavalink"
)

func TestFiltersOnChangeReceivesFullPayload(t *testing.T) {
	var got lavalink.Filters
	calls := 0
	f := NewFilters(func(payload lavalink.Filters) {
		got = payload
		calls++
	})

	f.SetLowPass(&lavalink.LowPass{Smoothing: 20})
	f.SetTremolo(&lavalink.Tremolo{Frequency: 2, Depth: 0.5})

	if calls != 2 {
		t.Fatalf("onChange called %d times, want 2", calls)
	}
	if got.LowPass == nil || got.Tremolo == nil {
		t.Error("payload must compose all active blocks, not just the last change")
	}
}

func TestFiltersTogglesMutuallyExclusive(t *testing.T) {
	f := NewFilters(nil)

	f.SetNightcore(true)
	if !f.Nightcore() || f.Current().Timescale == nil {
		t.Fatal("nightcore should set a timescale")
	}
	if f.Current().Timescale.Rate != nightcoreRate {
		t.Errorf("rate = %v, want %v", f.Current().Timescale.Rate, nightcoreRate)
	}

	f.SetVaporwave(true)
	if f.Nightcore() {
		t.Error("enabling vaporwave must disable nightcore")
	}
	if !f.Vaporwave() || f.Current().Timescale.Pitch != vaporwavePitch {
		t.Errorf("vaporwave timescale = %+v", f.Current().Timescale)
	}

	f.SetSlowmode(true)
	if f.Vaporwave() || f.Nightcore() {
		t.Error("enabling slowmode must disable the pitch toggles")
	}

	// Setting a timescale directly clears every toggle.
	f.SetTimescale(&lavalink.Timescale{Speed: 2, Pitch: 1, Rate: 1})
	if f.Slowmode() || f.Nightcore() || f.Vaporwave() {
		t.Error("explicit timescale must clear derived toggles")
	}
}

func TestFilters8DToggle(t *testing.T) {
	f := NewFilters(nil)
	f.Set8D(true)
	if !f.Is8D() || f.Current().Rotation == nil {
		t.Fatal("8D should set rotation")
	}
	f.SetRotation(nil)
	if f.Is8D() {
		t.Error("explicit rotation must clear the 8D toggle")
	}
}

func TestFiltersBassboost(t *testing.T) {
	f := NewFilters(nil)

	if err := f.SetBassboost(6); err == nil {
		t.Error("bassboost above max should fail")
	}
	if err := f.SetBassboost(-1); err == nil {
		t.Error("negative bassboost should fail")
	}

	if err := f.SetBassboost(1); err != nil {
		t.Fatalf("SetBassboost(1) error = %v", err)
	}
	eq := f.Current().Equalizer
	if eq == nil {
		t.Fatal("bassboost should set an equalizer")
	}
	// Level 1 is the neutral gain point of the mapping.
	if eq[0] != -0.25 {
		t.Errorf("gain at level 1 = %v, want -0.25", eq[0])
	}

	if err := f.SetBassboost(0); err != nil {
		t.Fatalf("SetBassboost(0) error = %v", err)
	}
	if f.Current().Equalizer != nil {
		t.Error("level 0 should remove the equalizer")
	}
}

func TestFiltersEqualizerValidation(t *testing.T) {
	f := NewFilters(nil)
	var eq lavalink.Equalizer
	eq[2] = 1.5
	if err := f.SetEqualizer(eq); err == nil {
		t.Error("gain above 1.0 should fail")
	}
	eq[2] = 0.5
	if err := f.SetEqualizer(eq); err != nil {
		t.Errorf("SetEqualizer() error = %v", err)
	}
}

func TestFiltersApplyPreset(t *testing.T) {
	f := NewFilters(nil)

	if err := f.ApplyPreset("nope"); err == nil {
		t.Error("unknown preset should fail")
	}
	if !f.Current().IsEmpty() {
		t.Error("failed preset must leave filters untouched")
	}

	if err := f.ApplyPreset(PresetLofi); err != nil {
		t.Fatalf("ApplyPreset(lofi) error = %v", err)
	}
	if f.Current().LowPass == nil || f.Current().Tremolo == nil {
		t.Error("lofi preset should set lowpass and tremolo")
	}

	// Presets replace whatever was active.
	if err := f.ApplyPreset(PresetKaraoke); err != nil {
		t.Fatalf("ApplyPreset(karaoke) error = %v", err)
	}
	if f.Current().LowPass != nil || f.Current().Karaoke == nil {
		t.Error("preset application should start from cleared filters")
	}
}

func TestFiltersClear(t *testing.T) {
	f := NewFilters(nil)
	f.SetNightcore(true)
	f.Set8D(true)
	f.Clear()
	if !f.Current().IsEmpty() {
		t.Error("Clear() should drop all blocks")
	}
	if f.Nightcore() || f.Is8D() {
		t.Error("Clear() should drop all toggles")
	}
}

func TestFiltersSnapshotRestore(t *testing.T) {
	f := NewFilters(nil)
	f.SetNightcore(true)
	snapshot := f.snapshot()

	restored := NewFilters(nil)
	restored.restore(snapshot)
	if !restored.Nightcore() {
		t.Error("restore() should rebuild toggles")
	}
	if restored.Current().Timescale == nil {
		t.Error("restore() should rebuild the payload")
	}
}
