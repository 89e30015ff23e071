package lavalink

import (
	"strconv"
	"time"
)

// Duration is a millisecond count as transmitted by audio nodes.
type Duration int64

// Millisecond is the base unit of Duration.
const (
	Millisecond Duration = 1
	Second               = 1000 * Millisecond
	Minute               = 60 * Second
	Hour                 = 60 * Minute
)

// ToDuration converts a node duration into a time.Duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// DurationFrom converts a time.Duration into a node duration.
func DurationFrom(d time.Duration) Duration {
	return Duration(d.Milliseconds())
}

// String formats the duration as mm:ss or hh:mm:ss.
func (d Duration) String() string {
	totalSeconds := int64(d / Second)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// Track is an audio track as returned by a node's load-tracks call.
// The Encoded blob is the only field the node consumes when playing;
// everything else is metadata for the host application. A track with an
// empty Encoded blob is unresolved and must be resolved before playback.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

// Resolved reports whether the track carries an encoded blob.
func (t Track) Resolved() bool {
	return t.Encoded != ""
}

// TrackInfo holds the metadata of a track.
type TrackInfo struct {
	Identifier string   `json:"identifier"`
	Author     string   `json:"author"`
	Length     Duration `json:"length"`
	IsStream   bool     `json:"isStream"`
	IsSeekable bool     `json:"isSeekable"`
	Title      string   `json:"title"`
	URI        *string  `json:"uri"`
	ArtworkURL *string  `json:"artworkUrl"`
	ISRC       *string  `json:"isrc"`
	SourceName string   `json:"sourceName"`
	Position   Duration `json:"position"`
}

// PlaylistInfo describes the playlist a load-tracks call resolved to.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// Playlist is a named ordered collection of tracks.
type Playlist struct {
	Info   PlaylistInfo `json:"info"`
	Tracks []Track      `json:"tracks"`
}

// Exception describes a playback failure reported by a node.
type Exception struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Cause    string   `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e Exception) Error() string {
	return e.Message
}

// Severity classifies how actionable a node exception is.
type Severity string

const (
	SeverityCommon     Severity = "common"
	SeveritySuspicious Severity = "suspicious"
	SeverityFault      Severity = "fault"
)
