package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const timeLayout = "2006-01-02 15:04"

func newTable(header ...interface{}) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// parseKind accepts "app" or "website".
func parseKind(s string) (domain.ItemKind, error) {
	kind := domain.ItemKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: kind must be app or website, got %q", domain.ErrInvalidDefinition, s)
	}
	return kind, nil
}

// parseChallenge reads "wait:<minutes>" or "tap:<count>".
func parseChallenge(s string) (domain.Challenge, error) {
	kind, arg, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	if !ok {
		return domain.Challenge{}, fmt.Errorf("%w: expected wait:<minutes> or tap:<count>, got %q", domain.ErrInvalidChallenge, s)
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidChallenge, arg)
	}
	var c domain.Challenge
	switch domain.ChallengeKind(kind) {
	case domain.ChallengeWait:
		c = domain.WaitChallenge(n)
	case domain.ChallengeTap:
		c = domain.TapChallenge(n)
	default:
		c = domain.Challenge{Kind: domain.ChallengeKind(kind)}
	}
	return c, c.Validate()
}

// parseClock reads "HH:MM".
func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time must be HH:MM, got %q", domain.ErrInvalidDefinition, s)
	}
	return t.Hour(), t.Minute(), nil
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// parseDays reads "every", "weekdays", "weekends" or a comma list of
// three-letter day names.
func parseDays(s string) (domain.Weekdays, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "every", "daily":
		return domain.EveryDay, nil
	case "weekdays":
		return domain.NewWeekdays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday), nil
	case "weekends":
		return domain.NewWeekdays(time.Saturday, time.Sunday), nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		d, ok := dayNames[name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown day %q", domain.ErrInvalidDefinition, part)
		}
		days = append(days, d)
	}
	return domain.NewWeekdays(days...), nil
}

// parseSessionType accepts the stored names and the short forms focus,
// sleep and detox.
func parseSessionType(s string) (domain.SessionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "focus":
		return domain.SessionFocus, nil
	case "sleep", "sleep_schedule":
		return domain.SessionSleepSchedule, nil
	case "detox", "digital_detox":
		return domain.SessionDigitalDetox, nil
	}
	return "", fmt.Errorf("%w: unknown session type %q", domain.ErrInvalidDefinition, s)
}

func parseSessionTypes(values []string) ([]domain.SessionType, error) {
	types := make([]domain.SessionType, 0, len(values))
	for _, v := range values {
		t, err := parseSessionType(v)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
