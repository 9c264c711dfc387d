// Package normalize turns the time representations used by contest sources
// into absolute UTC instants and HH:MM durations.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnrecognized is returned when a token does not match its expected pattern.
var ErrUnrecognized = errors.New("unrecognized time token")

// FallbackDuration is used when a start time cannot be resolved and no
// duration was supplied.
const FallbackDuration = "02:00"

// Kind tags the representation a Token carries.
type Kind int

const (
	KindUnknown Kind = iota
	// KindWeekdayClock is a "Monday 6:30 PM GMT+5:30" style token.
	KindWeekdayClock
	// KindRelative is a "2 Days 5 Hrs" style countdown.
	KindRelative
	// KindEpoch is a unix timestamp in seconds.
	KindEpoch
)

func (k Kind) String() string {
	switch k {
	case KindWeekdayClock:
		return "weekday_clock"
	case KindRelative:
		return "relative"
	case KindEpoch:
		return "epoch"
	default:
		return "unknown"
	}
}

// Token is a raw start-time value as produced by a source adapter.
type Token struct {
	Kind    Kind
	Raw     string
	Seconds int64
}

func WeekdayClock(raw string) Token { return Token{Kind: KindWeekdayClock, Raw: raw} }
func Relative(raw string) Token     { return Token{Kind: KindRelative, Raw: raw} }
func Epoch(seconds int64) Token     { return Token{Kind: KindEpoch, Seconds: seconds} }

func (t Token) String() string {
	if t.Kind == KindEpoch {
		return fmt.Sprintf("%s(%d)", t.Kind, t.Seconds)
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Raw)
}

// Duration is the duration a source supplies for a contest. The zero value
// means the source provided none and FallbackDuration applies.
type Duration struct {
	fixed      string
	seconds    int64
	hasSeconds bool
}

// FixedDuration is a platform-wide duration already formatted as HH:MM.
func FixedDuration(hhmm string) Duration { return Duration{fixed: hhmm} }

// SecondsDuration is a duration reported in seconds.
func SecondsDuration(seconds int64) Duration { return Duration{seconds: seconds, hasSeconds: true} }

// String renders the duration as HH:MM.
func (d Duration) String() string {
	switch {
	case d.hasSeconds:
		return HHMM(d.seconds)
	case d.fixed != "":
		return d.fixed
	default:
		return FallbackDuration
	}
}

// HHMM formats seconds as zero-padded hours and minutes, flooring both.
func HHMM(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

// Result is a normalized (start, duration) pair.
type Result struct {
	Start    time.Time
	Duration string
}

// Normalizer resolves tokens relative to its clock.
type Normalizer struct {
	now         func() time.Time
	local       *time.Location
	rollElapsed bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLocation sets the wall-clock basis used for relative tokens.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) { n.local = loc }
}

// WithRollElapsed controls weekday tokens naming today at a clock time that
// already passed. When true they resolve to next week; when false they keep
// today's date and may lie in the past.
func WithRollElapsed(roll bool) Option {
	return func(n *Normalizer) { n.rollElapsed = roll }
}

// New returns a Normalizer using time.Now, time.Local and rolling elapsed weekdays.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:         time.Now,
		local:       time.Local,
		rollElapsed: true,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize resolves tok and d. On failure the returned Result carries the
// fallback duration and a zero Start, and the error wraps ErrUnrecognized.
func (n *Normalizer) Normalize(tok Token, d Duration) (Result, error) {
	start, err := n.Start(tok)
	if err != nil {
		return Result{Duration: FallbackDuration}, err
	}
	return Result{Start: start, Duration: d.String()}, nil
}

// Start resolves tok to a UTC instant.
func (n *Normalizer) Start(tok Token) (time.Time, error) {
	now := n.now()
	switch tok.Kind {
	case KindWeekdayClock:
		return n.weekdayClock(tok.Raw, now)
	case KindRelative:
		return n.relative(tok.Raw, now)
	case KindEpoch:
		if tok.Seconds <= 0 {
			return time.Time{}, fmt.Errorf("%w: epoch %d", ErrUnrecognized, tok.Seconds)
		}
		return time.Unix(tok.Seconds, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnrecognized, tok)
	}
}

var (
	weekdayClockRe = regexp.MustCompile(`(?i)([a-z]+)\s+(\d{1,2}):(\d{2})\s*([ap]m)\s+GMT([+-])(\d{1,2}):(\d{2})`)
	relativeRe     = regexp.MustCompile(`(?i)(-?\d+)\s*Days?\s+(-?\d+)\s*Hrs?`)
)

func (n *Normalizer) weekdayClock(raw string, now time.Time) (time.Time, error) {
	m := weekdayClockRe.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}

	day, ok := parseWeekday(m[1])
	if !ok {
		return time.Time{}, fmt.Errorf("%w: weekday %q", ErrUnrecognized, m[1])
	}
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	if hour < 1 || hour > 12 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: clock %s:%s", ErrUnrecognized, m[2], m[3])
	}
	switch strings.ToUpper(m[4]) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	}

	offHours, _ := strconv.Atoi(m[6])
	offMinutes, _ := strconv.Atoi(m[7])
	if offHours > 14 || offMinutes > 59 {
		return time.Time{}, fmt.Errorf("%w: offset %s%s:%s", ErrUnrecognized, m[5], m[6], m[7])
	}
	offset := offHours*3600 + offMinutes*60
	if m[5] == "-" {
		offset = -offset
	}
	zone := time.FixedZone("GMT"+m[5]+m[6]+":"+m[7], offset)

	// The weekday is read in the contest's own zone, not the machine's.
	today := now.In(zone)
	ahead := (int(day) - int(today.Weekday()) + 7) % 7
	start := time.Date(today.Year(), today.Month(), today.Day()+ahead, hour, minute, 0, 0, zone)
	if n.rollElapsed && start.Before(now) {
		start = start.AddDate(0, 0, 7)
	}
	return start.UTC(), nil
}

func (n *Normalizer) relative(raw string, now time.Time) (time.Time, error) {
	m := relativeRe.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}
	days, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: days %q", ErrUnrecognized, m[1])
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: hours %q", ErrUnrecognized, m[2])
	}
	days, hours = max(days, 0), max(hours, 0)
	return now.In(n.local).AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour).UTC(), nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(s)
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, true
		}
	}
	return 0, false
}
