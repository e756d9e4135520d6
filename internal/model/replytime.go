package model

import (
	"fmt"
	"strings"
	"time"
)

// Wire layouts for the "<local datetime>@<zone>" reply time format.
const (
	replyTimeLayout  = "2006-01-02T15:04"
	timeOfDayLayout  = "15:04"
	replyTimeZoneSep = "@"
)

// FireTime is the parsed form of a stored reply time: an absolute target
// instant plus the zone it was expressed in. Code past the parse boundary
// operates on this value, never on the raw string.
type FireTime struct {
	Target time.Time
	Zone   *time.Location
}

// Remaining returns the time left until the target instant. A zero or
// negative value means the fire time is due.
func (f FireTime) Remaining(now time.Time) time.Duration {
	return f.Target.Sub(now)
}

// Due reports whether now has reached or passed the target instant.
func (f FireTime) Due(now time.Time) bool {
	return !now.Before(f.Target)
}

// String renders the fire time back into the wire format.
func (f FireTime) String() string {
	return f.Target.In(f.Zone).Format(replyTimeLayout) + replyTimeZoneSep + f.Zone.String()
}

// ParseReplyTime parses the stored "<local datetime>@<zone>" form, e.g.
// "2025-01-01T09:00@America/Toronto".
func ParseReplyTime(s string) (FireTime, error) {
	local, zone, err := splitZone(s)
	if err != nil {
		return FireTime{}, err
	}

	target, err := time.ParseInLocation(replyTimeLayout, local, zone)
	if err != nil {
		return FireTime{}, fmt.Errorf("parsing reply time %q: %w", local, err)
	}

	return FireTime{Target: target, Zone: zone}, nil
}

// ResolveReplyTime normalizes a submitted reply time into the stored
// absolute form. It accepts either the full "<datetime>@<zone>" form
// (kept as-is after validation) or the time-of-day form "HH:MM@<zone>",
// which is resolved against now: today in that zone if the time of day is
// still ahead, otherwise tomorrow.
func ResolveReplyTime(s string, now time.Time) (string, error) {
	local, zone, err := splitZone(s)
	if err != nil {
		return "", err
	}

	if tod, err := time.ParseInLocation(timeOfDayLayout, local, zone); err == nil {
		nowZ := now.In(zone)
		target := time.Date(
			nowZ.Year(), nowZ.Month(), nowZ.Day(),
			tod.Hour(), tod.Minute(), 0, 0, zone,
		)
		if !target.After(nowZ) {
			target = target.AddDate(0, 0, 1)
		}
		return FireTime{Target: target, Zone: zone}.String(), nil
	}

	ft, err := ParseReplyTime(s)
	if err != nil {
		return "", err
	}
	return ft.String(), nil
}

// splitZone separates the local time part from the IANA zone suffix and
// loads the zone.
func splitZone(s string) (string, *time.Location, error) {
	idx := strings.LastIndex(s, replyTimeZoneSep)
	if idx < 0 {
		return "", nil, fmt.Errorf("reply time %q: missing %q zone separator", s, replyTimeZoneSep)
	}

	local, zoneName := s[:idx], s[idx+1:]
	if zoneName == "" {
		return "", nil, fmt.Errorf("reply time %q: empty zone", s)
	}

	zone, err := time.LoadLocation(zoneName)
	if err != nil {
		return "", nil, fmt.Errorf("loading zone %q: %w", zoneName, err)
	}

	return local, zone, nil
}
