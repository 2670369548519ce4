package schemas

import (
	"strings"
	"time"
)

// TileState is the lifecycle state shown on a work item tile.
type TileState string

const (
	TileOpen     TileState = "Open"
	TileComplete TileState = "Complete"
	TileUnknown  TileState = "Unknown"
)

// ParseTileState maps the tile's header text onto a TileState.
func ParseTileState(s string) TileState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return TileOpen
	case "complete", "completed", "closed":
		return TileComplete
	default:
		return TileUnknown
	}
}

// WorkItemTile is one card on the Work Items tab. The list is a snapshot and
// is re-read after every mutating action.
type WorkItemTile struct {
	Ref          string    `json:"-"`
	State        TileState `json:"state"`
	Type         string    `json:"type"`
	Complaint    string    `json:"complaint,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedKnown bool      `json:"created_known"`
}

// IsPM reports whether the tile is a Preventive Maintenance item, either by
// its type title or by the complaint summary row.
func (t WorkItemTile) IsPM() bool {
	return ContainsToken(t.Type, "PM") || ContainsToken(t.Complaint, "PM")
}

// CreatedWithin reports whether the tile was created less than window before now.
// Tiles without a readable creation date are never recent.
func (t WorkItemTile) CreatedWithin(now time.Time, window time.Duration) bool {
	if !t.CreatedKnown {
		return false
	}
	return now.Sub(t.CreatedAt) <= window
}

// ContainsToken reports whether token occurs in s as a whole word, ignoring
// case, so that "PM" matches "PM Hard Hold" but not "RPM".
func ContainsToken(s, token string) bool {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return false
	}
	for _, f := range strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) {
		if f == token {
			return true
		}
	}
	return false
}

// createdAtLayouts are the date formats the Work Items tab has been seen to render.
var createdAtLayouts = []string{
	"01/02/2006, 3:04 PM",
	"01/02/2006 3:04 PM",
	"1/2/2006, 3:04 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006, 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseCreatedAt parses the "Created At" value of a tile in the local zone.
func ParseCreatedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Created At"))
	s = strings.TrimSpace(strings.TrimPrefix(s, ":"))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
