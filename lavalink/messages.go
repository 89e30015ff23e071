package lavalink

import (
	"encoding/json"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// Op identifies the type of a message on the node event stream.
type Op string

const (
	OpReady        Op = "ready"
	OpStats        Op = "stats"
	OpPlayerUpdate Op = "playerUpdate"
	OpEvent        Op = "event"
)

// EventType identifies a per-guild event inside an event-op message.
type EventType string

const (
	EventTypeTrackStart      EventType = "TrackStartEvent"
	EventTypeTrackEnd        EventType = "TrackEndEvent"
	EventTypeTrackException  EventType = "TrackExceptionEvent"
	EventTypeTrackStuck      EventType = "TrackStuckEvent"
	EventTypeWebSocketClosed EventType = "WebSocketClosedEvent"
	EventTypeSegmentsLoaded  EventType = "SegmentsLoaded"
	EventTypeSegmentSkipped  EventType = "SegmentSkipped"
	EventTypeChaptersLoaded  EventType = "ChaptersLoaded"
	EventTypeChapterStarted  EventType = "ChapterStarted"
)

// TrackEndReason explains why a track stopped playing.
type TrackEndReason string

const (
	TrackEndReasonFinished   TrackEndReason = "finished"
	TrackEndReasonLoadFailed TrackEndReason = "loadFailed"
	TrackEndReasonStopped    TrackEndReason = "stopped"
	TrackEndReasonReplaced   TrackEndReason = "replaced"
	TrackEndReasonCleanup    TrackEndReason = "cleanup"
)

// MayStartNext reports whether the queue may advance after this reason.
// Replaced and stopped tracks never trigger advancement on their own.
func (r TrackEndReason) MayStartNext() bool {
	switch r {
	case TrackEndReasonFinished, TrackEndReasonLoadFailed:
		return true
	default:
		return false
	}
}

// Message is the decoded envelope of one event-stream message.
type Message struct {
	Op   Op
	Data any
}

// ReadyMessage reports the node's session identity after the handshake.
type ReadyMessage struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

// PlayerUpdateMessage carries a periodic per-guild state tick.
type PlayerUpdateMessage struct {
	GuildID snowflake.ID `json:"guildId"`
	State   PlayerState  `json:"state"`
}

// PlayerState is the node-side view of a player.
type PlayerState struct {
	Time      int64    `json:"time"`
	Position  Duration `json:"position"`
	Connected bool     `json:"connected"`
	Ping      int      `json:"ping"`
}

// Event is implemented by all per-guild events.
type Event interface {
	EventGuildID() snowflake.ID
}

// TrackStartEvent signals a track has begun producing audio.
type TrackStartEvent struct {
	GuildID snowflake.ID `json:"guildId"`
	Track   Track        `json:"track"`
}

func (e TrackStartEvent) EventGuildID() snowflake.ID { return e.GuildID }

// TrackEndEvent signals a track has stopped, with the reason.
type TrackEndEvent struct {
	GuildID snowflake.ID   `json:"guildId"`
	Track   Track          `json:"track"`
	Reason  TrackEndReason `json:"reason"`
}

func (e TrackEndEvent) EventGuildID() snowflake.ID { return e.GuildID }

// TrackExceptionEvent signals a playback error.
type TrackExceptionEvent struct {
	GuildID   snowflake.ID `json:"guildId"`
	Track     Track        `json:"track"`
	Exception Exception    `json:"exception"`
}

func (e TrackExceptionEvent) EventGuildID() snowflake.ID { return e.GuildID }

// TrackStuckEvent signals a track produced no audio for ThresholdMs.
type TrackStuckEvent struct {
	GuildID     snowflake.ID `json:"guildId"`
	Track       Track        `json:"track"`
	ThresholdMs Duration     `json:"thresholdMs"`
}

func (e TrackStuckEvent) EventGuildID() snowflake.ID { return e.GuildID }

// WebSocketClosedEvent signals the node's voice connection closed.
type WebSocketClosedEvent struct {
	GuildID  snowflake.ID `json:"guildId"`
	Code     int          `json:"code"`
	Reason   string       `json:"reason"`
	ByRemote bool         `json:"byRemote"`
}

func (e WebSocketClosedEvent) EventGuildID() snowflake.ID { return e.GuildID }

// Segment is a SponsorBlock segment of a track.
type Segment struct {
	Category string   `json:"category"`
	Start    Duration `json:"start"`
	End      Duration `json:"end"`
}

// SegmentsLoadedEvent carries the SponsorBlock segments of a track.
type SegmentsLoadedEvent struct {
	GuildID  snowflake.ID `json:"guildId"`
	Segments []Segment    `json:"segments"`
}

func (e SegmentsLoadedEvent) EventGuildID() snowflake.ID { return e.GuildID }

// SegmentSkippedEvent signals a SponsorBlock segment was skipped.
type SegmentSkippedEvent struct {
	GuildID snowflake.ID `json:"guildId"`
	Segment Segment      `json:"segment"`
}

func (e SegmentSkippedEvent) EventGuildID() snowflake.ID { return e.GuildID }

// Chapter is a chapter marker of a track.
type Chapter struct {
	Name  string   `json:"name"`
	Start Duration `json:"start"`
	End   Duration `json:"end"`
}

// ChaptersLoadedEvent carries the chapter markers of a track.
type ChaptersLoadedEvent struct {
	GuildID  snowflake.ID `json:"guildId"`
	Chapters []Chapter    `json:"chapters"`
}

func (e ChaptersLoadedEvent) EventGuildID() snowflake.ID { return e.GuildID }

// ChapterStartedEvent signals playback entered a chapter.
type ChapterStartedEvent struct {
	GuildID snowflake.ID `json:"guildId"`
	Chapter Chapter      `json:"chapter"`
}

func (e ChapterStartedEvent) EventGuildID() snowflake.ID { return e.GuildID }

// UnknownEvent preserves events this client has no model for.
type UnknownEvent struct {
	GuildID snowflake.ID `json:"guildId"`
	Type    EventType    `json:"type"`
	Raw     json.RawMessage
}

func (e UnknownEvent) EventGuildID() snowflake.ID { return e.GuildID }

// UnmarshalMessage decodes one event-stream frame into a Message whose Data
// is the concrete payload for the op (ReadyMessage, Stats,
// PlayerUpdateMessage, or one of the Event types).
func UnmarshalMessage(data []byte) (Message, error) {
	var envelope struct {
		Op   Op        `json:"op"`
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Message{}, fmt.Errorf("failed to decode message envelope: %w", err)
	}

	msg := Message{Op: envelope.Op}
	switch envelope.Op {
	case OpReady:
		var ready ReadyMessage
		if err := json.Unmarshal(data, &ready); err != nil {
			return Message{}, err
		}
		msg.Data = ready
	case OpStats:
		var stats Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			return Message{}, err
		}
		msg.Data = stats
	case OpPlayerUpdate:
		var update PlayerUpdateMessage
		if err := json.Unmarshal(data, &update); err != nil {
			return Message{}, err
		}
		msg.Data = update
	case OpEvent:
		event, err := unmarshalEvent(envelope.Type, data)
		if err != nil {
			return Message{}, err
		}
		msg.Data = event
	default:
		return Message{}, fmt.Errorf("unknown message op %q", envelope.Op)
	}
	return msg, nil
}

func unmarshalEvent(eventType EventType, data []byte) (Event, error) {
	var target Event
	switch eventType {
	case EventTypeTrackStart:
		target = &TrackStartEvent{}
	case EventTypeTrackEnd:
		target = &TrackEndEvent{}
	case EventTypeTrackException:
		target = &TrackExceptionEvent{}
	case EventTypeTrackStuck:
		target = &TrackStuckEvent{}
	case EventTypeWebSocketClosed:
		target = &WebSocketClosedEvent{}
	case EventTypeSegmentsLoaded:
		target = &SegmentsLoadedEvent{}
	case EventTypeSegmentSkipped:
		target = &SegmentSkippedEvent{}
	case EventTypeChaptersLoaded:
		target = &ChaptersLoadedEvent{}
	case EventTypeChapterStarted:
		target = &ChapterStartedEvent{}
	default:
		target = &UnknownEvent{Type: eventType, Raw: append(json.RawMessage(nil), data...)}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}
	return deref(target), nil
}

// deref unwraps the pointer used for decoding so callers can type-switch on
// event values.
func deref(event Event) Event {
	switch e := event.(type) {
	case *TrackStartEvent:
		return *e
	case *TrackEndEvent:
		return *e
	case *TrackExceptionEvent:
		return *e
	case *TrackStuckEvent:
		return *e
	case *WebSocketClosedEvent:
		return *e
	case *SegmentsLoadedEvent:
		return *e
	case *SegmentSkippedEvent:
		return *e
	case *ChaptersLoadedEvent:
		return *e
	case *ChapterStartedEvent:
		return *e
	case *UnknownEvent:
		return *e
	default:
		return event
	}
}
