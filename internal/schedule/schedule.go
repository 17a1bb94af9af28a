// Package schedule implements the Schedule Parser (Module I): cron
// pass-through, the three @-token shorthands, and the natural-language
// forms enumerated in spec.md §4.I, all reduced to a canonical
// {kind, value, tz} Trigger.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"
	"github.com/robfig/cron/v3"
)

// Kind distinguishes a cron-style trigger from a fixed-interval one.
type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
)

// Trigger is the canonical, reparseable representation of a schedule.
type Trigger struct {
	Kind  Kind
	Value string // canonical cron expression, or "N[smh]" for intervals
	TZ    string
}

var weekdayIndex = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2, "tues": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4, "thur": 4, "thurs": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var whenParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	return w
}()

var (
	reEveryWeekdayAt = regexp.MustCompile(`(?i)^every\s+(sunday|sun|monday|mon|tuesday|tue|tues|wednesday|wed|thursday|thu|thur|thurs|friday|fri|saturday|sat)\s+at\s+(.+)$`)
	reWeekdayAt      = regexp.MustCompile(`(?i)^(sunday|sun|monday|mon|tuesday|tue|tues|wednesday|wed|thursday|thu|thur|thurs|friday|fri|saturday|sat)\s+at\s+(.+)$`)
	reDailyAt        = regexp.MustCompile(`(?i)^daily\s+at\s+(.+)$`)
	reEveryWeekday   = regexp.MustCompile(`(?i)^every\s+weekday\s+at\s+(.+)$`)
	reEveryInterval  = regexp.MustCompile(`(?i)^every\s+(\d+)\s+(second|seconds|minute|minutes|hour|hours)$`)
	reFirstWeekday   = regexp.MustCompile(`(?i)^first\s+(sunday|sun|monday|mon|tuesday|tue|tues|wednesday|wed|thursday|thu|thur|thurs|friday|fri|saturday|sat)\s+of\s+each\s+month\s+at\s+(.+)$`)
	reLastDayMonth   = regexp.MustCompile(`(?i)^last\s+day\s+of\s+each\s+month\s+at\s+(.+)$`)
	reTimeOfDay      = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
)

// Parse reduces a schedule expression into a canonical Trigger. Returns
// (nil, nil) for undefined input — the caller treats the task as
// unschedulable, per spec.md §4.I, rather than as an error.
func Parse(expr, tz string) (*Trigger, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	if tz == "" {
		tz = "UTC"
	}

	switch strings.ToLower(expr) {
	case "@daily":
		return &Trigger{Kind: KindCron, Value: "0 9 * * *", TZ: tz}, nil
	case "@weekly":
		return &Trigger{Kind: KindCron, Value: "0 20 * * 0", TZ: tz}, nil
	case "@monthly":
		return &Trigger{Kind: KindCron, Value: "0 9 1 * *", TZ: tz}, nil
	}

	if isCron(expr) {
		return &Trigger{Kind: KindCron, Value: normalizeCronSpaces(expr), TZ: tz}, nil
	}

	if m := reEveryInterval.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := unitLetter(m[2])
		switch unit {
		case "m":
			return &Trigger{Kind: KindCron, Value: fmt.Sprintf("*/%d * * * *", n), TZ: tz}, nil
		case "h":
			return &Trigger{Kind: KindCron, Value: fmt.Sprintf("0 */%d * * *", n), TZ: tz}, nil
		default:
			// cron's 5-field format has no seconds column; sub-minute
			// intervals stay an interval trigger.
			return &Trigger{Kind: KindInterval, Value: fmt.Sprintf("%d%s", n, unit), TZ: tz}, nil
		}
	}

	if m := reEveryWeekday.FindStringSubmatch(expr); m != nil {
		hh, mm, ok := parseTimeOfDay(m[1])
		if !ok {
			return nil, nil
		}
		return &Trigger{Kind: KindCron, Value: fmt.Sprintf("%d %d * * 1-5", mm, hh), TZ: tz}, nil
	}

	if m := reEveryWeekdayAt.FindStringSubmatch(expr); m != nil {
		return weekdayAtTrigger(m[1], m[2], tz)
	}
	if m := reWeekdayAt.FindStringSubmatch(expr); m != nil {
		return weekdayAtTrigger(m[1], m[2], tz)
	}
	if m := reDailyAt.FindStringSubmatch(expr); m != nil {
		hh, mm, ok := parseTimeOfDay(m[1])
		if !ok {
			return nil, nil
		}
		return &Trigger{Kind: KindCron, Value: fmt.Sprintf("%d %d * * *", mm, hh), TZ: tz}, nil
	}
	if m := reFirstWeekday.FindStringSubmatch(expr); m != nil {
		day, ok := weekdayIndex[strings.ToLower(m[1])]
		if !ok {
			return nil, nil
		}
		hh, mm, ok := parseTimeOfDay(m[2])
		if !ok {
			return nil, nil
		}
		return &Trigger{Kind: KindCron, Value: fmt.Sprintf("%d %d 1-7 * %d", mm, hh, day), TZ: tz}, nil
	}
	if m := reLastDayMonth.FindStringSubmatch(expr); m != nil {
		hh, mm, ok := parseTimeOfDay(m[1])
		if !ok {
			return nil, nil
		}
		return &Trigger{Kind: KindCron, Value: fmt.Sprintf("%d %d 28-31 * *", mm, hh), TZ: tz}, nil
	}

	return nil, nil
}

func weekdayAtTrigger(weekday, timePart, tz string) (*Trigger, error) {
	day, ok := weekdayIndex[strings.ToLower(weekday)]
	if !ok {
		return nil, nil
	}
	hh, mm, ok := parseTimeOfDay(timePart)
	if !ok {
		return nil, nil
	}
	return &Trigger{Kind: KindCron, Value: fmt.Sprintf("%d %d * * %d", mm, hh, day), TZ: tz}, nil
}

// parseTimeOfDay extracts an hour/minute pair from a "H[:MM]{am|pm}"
// fragment. Falls back to the olebedev/when natural-language time parser
// for phrasings the explicit regex misses (e.g. stray whitespace, "noon").
func parseTimeOfDay(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	if m := reTimeOfDay.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		switch strings.ToLower(m[3]) {
		case "pm":
			if h != 12 {
				h += 12
			}
		case "am":
			if h == 12 {
				h = 0
			}
		}
		if h < 0 || h > 23 || min < 0 || min > 59 {
			return 0, 0, false
		}
		return h, min, true
	}

	res, err := whenParser.Parse("at "+s, referenceTime())
	if err != nil || res == nil {
		return 0, 0, false
	}
	return res.Time.Hour(), res.Time.Minute(), true
}

// referenceTime anchors the when parser's relative resolution; it does not
// affect the hour/minute extracted from an absolute time-of-day phrase.
func referenceTime() time.Time {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
}

func unitLetter(unit string) string {
	switch {
	case strings.HasPrefix(strings.ToLower(unit), "second"):
		return "s"
	case strings.HasPrefix(strings.ToLower(unit), "minute"):
		return "m"
	case strings.HasPrefix(strings.ToLower(unit), "hour"):
		return "h"
	default:
		return "m"
	}
}

func isCron(expr string) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	_, err := cronParser.Parse(expr)
	return err == nil
}

func normalizeCronSpaces(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}

// NextRun computes the next fire time strictly after `after` for a
// Trigger, honoring its configured timezone for cron triggers.
func NextRun(t *Trigger, after time.Time) (time.Time, error) {
	if t == nil {
		return time.Time{}, fmt.Errorf("schedule: nil trigger")
	}
	loc, err := time.LoadLocation(t.TZ)
	if err != nil {
		loc = time.UTC
	}

	switch t.Kind {
	case KindCron:
		sched, err := cronParser.Parse(t.Value)
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule: parse cron %q: %w", t.Value, err)
		}
		return sched.Next(after.In(loc)), nil
	case KindInterval:
		d, err := parseIntervalDuration(t.Value)
		if err != nil {
			return time.Time{}, err
		}
		return after.Add(d), nil
	default:
		return time.Time{}, fmt.Errorf("schedule: unknown trigger kind %q", t.Kind)
	}
}

func parseIntervalDuration(value string) (time.Duration, error) {
	if len(value) < 2 {
		return 0, fmt.Errorf("schedule: malformed interval %q", value)
	}
	unit := value[len(value)-1:]
	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil {
		return 0, fmt.Errorf("schedule: malformed interval %q: %w", value, err)
	}
	switch unit {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("schedule: unknown interval unit %q", unit)
	}
}
