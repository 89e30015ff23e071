package lavalink

import (
	"encoding/json"
	"fmt"
)

// EqualizerBands is the number of bands a node equalizer exposes.
const EqualizerBands = 15

// Equalizer holds per-band gains. Valid gains are in [-0.25, 1.0]; 0 is the
// band's natural level. Marshals to the node's band/gain object list.
type Equalizer [EqualizerBands]float64

// MarshalJSON encodes only bands with a non-zero gain.
func (e Equalizer) MarshalJSON() ([]byte, error) {
	type band struct {
		Band int     `json:"band"`
		Gain float64 `json:"gain"`
	}
	bands := make([]band, 0, EqualizerBands)
	for i, gain := range e {
		if gain != 0 {
			bands = append(bands, band{Band: i, Gain: gain})
		}
	}
	return json.Marshal(bands)
}

// UnmarshalJSON decodes the node's band/gain object list.
func (e *Equalizer) UnmarshalJSON(data []byte) error {
	var bands []struct {
		Band int     `json:"band"`
		Gain float64 `json:"gain"`
	}
	if err := json.Unmarshal(data, &bands); err != nil {
		return err
	}
	for _, b := range bands {
		if b.Band < 0 || b.Band >= EqualizerBands {
			return fmt.Errorf("equalizer band %d out of range", b.Band)
		}
		e[b.Band] = b.Gain
	}
	return nil
}

// Karaoke attenuates vocals centered at FilterBand.
type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

// Timescale changes playback speed, pitch and rate. 1.0 is unchanged.
type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

// Tremolo oscillates volume at Frequency Hz.
type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Vibrato oscillates pitch at Frequency Hz.
type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Rotation pans audio around the listener at RotationHz.
type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

// Distortion applies trigonometric waveshaping.
type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

// ChannelMix blends the stereo channels into each other.
type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

// LowPass suppresses frequencies above the cutoff implied by Smoothing.
type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}

// Filters is the full filter payload sent to a node. Nodes do not support
// partial filter updates; the whole payload is sent on every change.
type Filters struct {
	Volume     *float64    `json:"volume,omitempty"`
	Equalizer  *Equalizer  `json:"equalizer,omitempty"`
	Karaoke    *Karaoke    `json:"karaoke,omitempty"`
	Timescale  *Timescale  `json:"timescale,omitempty"`
	Tremolo    *Tremolo    `json:"tremolo,omitempty"`
	Vibrato    *Vibrato    `json:"vibrato,omitempty"`
	Rotation   *Rotation   `json:"rotation,omitempty"`
	Distortion *Distortion `json:"distortion,omitempty"`
	ChannelMix *ChannelMix `json:"channelMix,omitempty"`
	LowPass    *LowPass    `json:"lowPass,omitempty"`
}

// IsEmpty reports whether no filter block is set.
func (f Filters) IsEmpty() bool {
	return f.Volume == nil && f.Equalizer == nil && f.Karaoke == nil &&
		f.Timescale == nil && f.Tremolo == nil && f.Vibrato == nil &&
		f.Rotation == nil && f.Distortion == nil && f.ChannelMix == nil &&
		f.LowPass == nil
}
