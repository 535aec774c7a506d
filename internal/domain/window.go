package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Window is a delivery window: one calendar day in the delivery time zone.
type Window string

// WindowOf returns the window containing t in loc.
func WindowOf(t time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window(t.In(loc).Format(DateLayout))
}

// ParseWindow validates s as a YYYY-MM-DD window.
func ParseWindow(s string) (Window, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("parse window %q: %w", s, err)
	}
	return Window(s), nil
}

// String implements fmt.Stringer.
func (w Window) String() string { return string(w) }

// Start returns midnight of w in loc.
func (w Window) Start(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, string(w), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse window %q: %w", w, err)
	}
	return t, nil
}
