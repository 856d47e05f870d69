// Package protocol defines the JSON frames exchanged with browsers.
//
// Every frame is one JSON object with a "type" tag. Inbound frames decode to
// a closed set of Event variants; anything unparseable or unknown decodes to
// Unrecognized, which handlers must ignore.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame type tags.
const (
	TypeCursor      = "cursor"
	TypeClick       = "click"
	TypeTrail       = "trail"
	TypeDrag        = "drag"
	TypeInit        = "init"
	TypePresence    = "presence"
	TypeCursorLeave = "cursor-leave"
)

// Event is an inbound client event. The set of implementations is closed.
type Event interface {
	event()
}

// Cursor reports the sender's pointer position.
type Cursor struct {
	X float64
	Y float64
}

// Click is a discrete ripple at a position.
type Click struct {
	X float64
	Y float64
}

// Trail is one point of the sender's pointer trail.
type Trail struct {
	X float64
	Y float64
}

// Drag moves a shared object.
type Drag struct {
	ObjectID string
	X        float64
	Y        float64
}

// Unrecognized is a frame that failed to parse or carries an unknown tag.
type Unrecognized struct {
	Type   string
	Reason string
}

func (Cursor) event()       {}
func (Click) event()        {}
func (Trail) event()        {}
func (Drag) event()         {}
func (Unrecognized) event() {}

// Decode parses one inbound frame. Keys match exactly, so "TYPE" or "X" do
// not stand in for "type" or "x". It never returns nil.
func Decode(frame []byte) Event {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return Unrecognized{Reason: fmt.Sprintf("invalid json: %v", err)}
	}

	var tag string
	if reason := requireField(fields, "type", &tag); reason != "" {
		return Unrecognized{Reason: reason}
	}
	switch tag {
	case TypeCursor, TypeClick, TypeTrail, TypeDrag:
	default:
		return Unrecognized{Type: tag, Reason: "unknown type"}
	}

	var x, y float64
	if reason := requireField(fields, "x", &x); reason != "" {
		return Unrecognized{Type: tag, Reason: reason}
	}
	if reason := requireField(fields, "y", &y); reason != "" {
		return Unrecognized{Type: tag, Reason: reason}
	}

	switch tag {
	case TypeCursor:
		return Cursor{X: x, Y: y}
	case TypeClick:
		return Click{X: x, Y: y}
	case TypeTrail:
		return Trail{X: x, Y: y}
	default:
		var objectID string
		if reason := requireField(fields, "objectId", &objectID); reason != "" {
			return Unrecognized{Type: tag, Reason: reason}
		}
		return Drag{ObjectID: objectID, X: x, Y: y}
	}
}

// requireField decodes fields[key] into target and describes what is wrong
// when it cannot. A JSON null counts as missing.
func requireField(fields map[string]json.RawMessage, key string, target any) string {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return key + " is required"
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Sprintf("invalid %s: %v", key, err)
	}
	return ""
}
