package view

import (
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned by ParseEvent for input that maps to nothing.
var ErrUnknownEvent = errors.New("unknown event")

// keyEvents maps key names to navigation events. Both DOM KeyboardEvent.key
// values and bubbletea key strings are listed so every renderer shares one
// table.
var keyEvents = map[string]EventKind{
	"ArrowUp": MoveUp, "up": MoveUp, "k": MoveUp,
	"ArrowDown": MoveDown, "down": MoveDown, "j": MoveDown,
	"ArrowRight": Expand, "right": Expand, "l": Expand,
	"ArrowLeft": Collapse, "left": Collapse, "h": Collapse,
	"Enter": Toggle, "enter": Toggle, " ": Toggle, "space": Toggle,
	"Home": MoveFirst, "home": MoveFirst, "g": MoveFirst,
	"End": MoveLast, "end": MoveLast, "G": MoveLast,
	"e": ExpandEverything,
	"c": CollapseEverything,
}

// EventForKey returns the event bound to key, if any.
func EventForKey(key string) (Event, bool) {
	k, ok := keyEvents[key]
	if !ok {
		return Event{}, false
	}
	return Event{Kind: k}, true
}

// ParseEvent builds an event from remote input: a key name, or an action
// name with an optional span id. A key wins when both are given.
func ParseEvent(key, action, spanID string) (Event, error) {
	if key != "" {
		if ev, ok := EventForKey(key); ok {
			return ev, nil
		}
		return Event{}, fmt.Errorf("%w: key %q", ErrUnknownEvent, key)
	}
	kind, ok := ParseEventKind(action)
	if !ok {
		return Event{}, fmt.Errorf("%w: action %q", ErrUnknownEvent, action)
	}
	if (kind == Select || kind == ToggleRow) && spanID == "" {
		return Event{}, fmt.Errorf("%w: %s needs a span id", ErrUnknownEvent, action)
	}
	return Event{Kind: kind, SpanID: spanID}, nil
}
