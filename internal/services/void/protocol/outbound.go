package protocol

import (
	"encoding/json"

	"github.com/louisbranch/thevoid/internal/services/void/objects"
)

// Init is sent once to a session right after it connects.
type Init struct {
	Type          string                 `json:"type"`
	ClientID      int64                  `json:"clientId"`
	Objects       []objects.SharedObject `json:"objects"`
	PresenceCount int                    `json:"presenceCount"`
}

// Presence carries the live-session count.
type Presence struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Point relays a cursor, click or trail event from ClientID.
type Point struct {
	Type     string  `json:"type"`
	ClientID int64   `json:"clientId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// DragRelay relays a drag from ClientID.
type DragRelay struct {
	Type     string  `json:"type"`
	ClientID int64   `json:"clientId"`
	ObjectID string  `json:"objectId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// CursorLeave tells peers to retire a departed client's cursor.
type CursorLeave struct {
	Type     string `json:"type"`
	ClientID int64  `json:"clientId"`
}

// NewInit builds the init frame. A nil object list is sent as [].
func NewInit(clientID int64, list []objects.SharedObject, presenceCount int) Init {
	if list == nil {
		list = []objects.SharedObject{}
	}
	return Init{Type: TypeInit, ClientID: clientID, Objects: list, PresenceCount: presenceCount}
}

// NewPresence builds a presence frame.
func NewPresence(count int) Presence {
	return Presence{Type: TypePresence, Count: count}
}

// NewPoint builds a cursor, click or trail relay.
func NewPoint(tag string, clientID int64, x float64, y float64) Point {
	return Point{Type: tag, ClientID: clientID, X: x, Y: y}
}

// NewDragRelay builds a drag relay.
func NewDragRelay(clientID int64, drag Drag) DragRelay {
	return DragRelay{Type: TypeDrag, ClientID: clientID, ObjectID: drag.ObjectID, X: drag.X, Y: drag.Y}
}

// NewCursorLeave builds a cursor-leave frame.
func NewCursorLeave(clientID int64) CursorLeave {
	return CursorLeave{Type: TypeCursorLeave, ClientID: clientID}
}

// Encode marshals an outbound frame.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
