package engine

import (
	"math"
	"strings"
	"time"

	"github.com/ghiac/vaultcoach/model"
)

const (
	defaultLimit = 10
	maxLimit     = 100

	// heightBucketMinAttempts is the fewest attempts a height needs before
	// its success rate is reported
	heightBucketMinAttempts = 3
	heightBucketTop         = 5

	notAvailable = "N/A"
)

// Timeframes accepted by the stats and progression tools
const (
	TimeframeWeek  = "week"
	TimeframeMonth = "month"
	TimeframeYear  = "year"
	TimeframeAll   = "all"
)

// jumpRecord is a jump together with the session it belongs to
type jumpRecord struct {
	session *model.Session
	index   int
	jump    model.Jump
}

// flattenJumps keeps session order, then jump order within a session
func flattenJumps(sessions []*model.Session) []jumpRecord {
	var out []jumpRecord
	for _, s := range sessions {
		for i, j := range s.Jumps {
			out = append(out, jumpRecord{session: s, index: i, jump: j})
		}
	}
	return out
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDay reads a date argument; an empty or invalid value is an open bound
func parseDay(v string) time.Time {
	t := model.ParseDate(v)
	if t.IsZero() {
		return t
	}
	return dayOf(t)
}

// withinDays reports whether t falls in [start, end] by calendar day.
// Sessions without a date only match an unbounded range.
func withinDays(t, start, end time.Time) bool {
	if t.IsZero() {
		return start.IsZero() && end.IsZero()
	}
	d := dayOf(t)
	if !start.IsZero() && d.Before(start) {
		return false
	}
	if !end.IsZero() && d.After(end) {
		return false
	}
	return true
}

// timeframeStart returns the first instant of a relative window, or the zero
// time for all time
func timeframeStart(timeframe string, now time.Time) time.Time {
	switch strings.ToLower(timeframe) {
	case TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case TimeframeMonth:
		return now.AddDate(0, 0, -30)
	case TimeframeYear:
		return now.AddDate(0, 0, -365)
	default:
		return time.Time{}
	}
}

func normalizeTimeframe(timeframe string) string {
	switch tf := strings.ToLower(timeframe); tf {
	case TimeframeWeek, TimeframeMonth, TimeframeYear:
		return tf
	default:
		return TimeframeAll
	}
}

func sessionsSince(sessions []*model.Session, since time.Time) []*model.Session {
	if since.IsZero() {
		return sessions
	}
	out := make([]*model.Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.Date.IsZero() && !s.Date.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

// successRate is makes/attempts as a rounded percentage
func successRate(makes, attempts int) int {
	if attempts == 0 {
		return 0
	}
	return int(math.Round(float64(makes) / float64(attempts) * 100))
}

// formatBest renders a height or N/A when nothing was recorded
func formatBest(meters float64) string {
	if meters <= 0 {
		return notAvailable
	}
	return model.FormatHeight(meters)
}

func limitArg(args model.Args) int {
	n := args.Int("limit", defaultLimit)
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// heightArg reads a height given either as meters or as a height string
func heightArg(args model.Args, key string) (float64, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	if f, ok := model.AsFloat(v); ok {
		return f, f > 0
	}
	m := model.ParseHeight(model.AsString(v))
	return m, m > 0
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// tally accumulates attempts at something
type tally struct {
	attempts int
	makes    int
	best     float64
	sum      float64
	measured int
}

func (t *tally) add(j model.Jump) {
	t.attempts++
	if j.Made() {
		t.makes++
		if j.HeightMeters > t.best {
			t.best = j.HeightMeters
		}
	}
	if j.HeightMeters > 0 {
		t.sum += j.HeightMeters
		t.measured++
	}
}

func (t *tally) rate() int {
	return successRate(t.makes, t.attempts)
}

func (t *tally) average() string {
	if t.measured == 0 {
		return notAvailable
	}
	return model.FormatHeight(t.sum / float64(t.measured))
}
