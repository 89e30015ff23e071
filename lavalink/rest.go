package lavalink

import (
	"encoding/json"
	"fmt"
)

// LoadType classifies the result of a load-tracks call.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// LoadResult is the raw response of GET /loadtracks. Data's shape depends
// on LoadType; use Decode to obtain the typed payload.
type LoadResult struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

// Decode returns the typed payload of the result: Track for a single track,
// Playlist for a playlist, []Track for a search, nil for empty, and an
// Exception error for a node-side load error.
func (r LoadResult) Decode() (any, error) {
	switch r.LoadType {
	case LoadTypeTrack:
		var track Track
		if err := json.Unmarshal(r.Data, &track); err != nil {
			return nil, err
		}
		return track, nil
	case LoadTypePlaylist:
		var playlist Playlist
		if err := json.Unmarshal(r.Data, &playlist); err != nil {
			return nil, err
		}
		return playlist, nil
	case LoadTypeSearch:
		var tracks []Track
		if err := json.Unmarshal(r.Data, &tracks); err != nil {
			return nil, err
		}
		return tracks, nil
	case LoadTypeEmpty:
		return nil, nil
	case LoadTypeError:
		var exception Exception
		if err := json.Unmarshal(r.Data, &exception); err != nil {
			return nil, err
		}
		return nil, exception
	default:
		return nil, fmt.Errorf("unknown load type %q", r.LoadType)
	}
}

// VoiceState is the voice credential tuple a node needs before it can join
// a voice channel.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether all three credentials are present.
func (v VoiceState) Complete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}

// PlayerUpdateTrack selects the track of a player update. A nil Encoded
// marshals to null, which stops the current track; use Omit to leave the
// track untouched while setting UserData.
type PlayerUpdateTrack struct {
	Encoded    *string `json:"encoded"`
	Identifier string  `json:"identifier,omitempty"`
	UserData   any     `json:"userData,omitempty"`
}

// PlayerUpdate is the partial body of PATCH /sessions/{s}/players/{g}.
// Nil fields are omitted and leave the node-side value unchanged.
type PlayerUpdate struct {
	Track    *PlayerUpdateTrack `json:"track,omitempty"`
	Position *Duration          `json:"position,omitempty"`
	EndTime  *Duration          `json:"endTime,omitempty"`
	Volume   *int               `json:"volume,omitempty"`
	Paused   *bool              `json:"paused,omitempty"`
	Filters  *Filters           `json:"filters,omitempty"`
	Voice    *VoiceState        `json:"voice,omitempty"`
}

// IsEmpty reports whether the update carries no field at all.
func (u PlayerUpdate) IsEmpty() bool {
	return u.Track == nil && u.Position == nil && u.EndTime == nil &&
		u.Volume == nil && u.Paused == nil && u.Filters == nil && u.Voice == nil
}

// Merge overlays other onto u, later values winning per field.
func (u *PlayerUpdate) Merge(other PlayerUpdate) {
	if other.Track != nil {
		u.Track = other.Track
	}
	if other.Position != nil {
		u.Position = other.Position
	}
	if other.EndTime != nil {
		u.EndTime = other.EndTime
	}
	if other.Volume != nil {
		u.Volume = other.Volume
	}
	if other.Paused != nil {
		u.Paused = other.Paused
	}
	if other.Filters != nil {
		u.Filters = other.Filters
	}
	if other.Voice != nil {
		u.Voice = other.Voice
	}
}

// RestPlayer is the node-side player representation returned by the
// session players endpoints.
type RestPlayer struct {
	GuildID string      `json:"guildId"`
	Track   *Track      `json:"track"`
	Volume  int         `json:"volume"`
	Paused  bool        `json:"paused"`
	State   PlayerState `json:"state"`
	Voice   VoiceState  `json:"voice"`
	Filters Filters     `json:"filters"`
}

// SessionUpdate is the body of PATCH /sessions/{sessionId}.
type SessionUpdate struct {
	Resuming *bool `json:"resuming,omitempty"`
	Timeout  *int  `json:"timeout,omitempty"`
}

// Session is the response of a session update.
type Session struct {
	Resuming bool `json:"resuming"`
	Timeout  int  `json:"timeout"`
}

// Error is the error body returned by a node on non-2xx responses.
type Error struct {
	Timestamp int64  `json:"timestamp"`
	Status    int    `json:"status"`
	ErrorText string `json:"error"`
	Trace     string `json:"trace,omitempty"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.ErrorText, e.Message)
}

// SponsorBlockCategories is the category list of the SponsorBlock plugin
// endpoints.
type SponsorBlockCategories []string
