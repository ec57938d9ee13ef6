package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ghiac/vaultcoach/model"
)

// UserStats is the get_user_stats result
type UserStats struct {
	Timeframe           string         `json:"timeframe"`
	TotalSessions       int            `json:"totalSessions"`
	TotalJumps          int            `json:"totalJumps"`
	Makes               int            `json:"makes"`
	PersonalBest        string         `json:"personalBest"`
	SuccessRate         int            `json:"successRate"`
	HeightSuccessRate   []HeightBucket `json:"heightSuccessRate"`
	RatingCounts        map[string]int `json:"ratingCounts,omitempty"`
	LastSessionDate     string         `json:"lastSessionDate,omitempty"`
	LastCompetitionDate string         `json:"lastCompetitionDate,omitempty"`

	personalBestMeters float64
	lastSession        time.Time
	lastCompetition    time.Time
}

// HeightBucket is the success rate at one bar height
type HeightBucket struct {
	Height      string `json:"height"`
	Attempts    int    `json:"attempts"`
	Makes       int    `json:"makes"`
	SuccessRate int    `json:"successRate"`

	meters float64
}

func (x *Executor) getUserStats(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	return x.userStats(ctx, userID, args.String("timeframe", TimeframeAll))
}

func (x *Executor) userStats(ctx context.Context, userID, timeframe string) (*UserStats, error) {
	sessions, err := x.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	timeframe = normalizeTimeframe(timeframe)
	return computeStats(sessionsSince(sessions, timeframeStart(timeframe, x.clock())), timeframe), nil
}

// computeStats aggregates jumps across sessions. Heights are bucketed to the
// centimetre and only buckets with enough attempts are reported.
func computeStats(sessions []*model.Session, timeframe string) *UserStats {
	stats := &UserStats{
		Timeframe:         timeframe,
		TotalSessions:     len(sessions),
		HeightSuccessRate: []HeightBucket{},
		PersonalBest:      notAvailable,
	}

	buckets := make(map[float64]*HeightBucket)
	ratings := make(map[string]int)

	for _, s := range sessions {
		if s.Date.After(stats.lastSession) {
			stats.lastSession = s.Date
		}
		if s.IsCompetition() && s.Date.After(stats.lastCompetition) {
			stats.lastCompetition = s.Date
		}

		for _, j := range s.Jumps {
			stats.TotalJumps++
			if j.Rating != "" {
				ratings[strings.ToLower(j.Rating)]++
			}
			if j.Made() {
				stats.Makes++
				if j.HeightMeters > stats.personalBestMeters {
					stats.personalBestMeters = j.HeightMeters
				}
			}

			if j.HeightMeters <= 0 {
				continue
			}
			key := model.RoundHeight(j.HeightMeters)
			b, ok := buckets[key]
			if !ok {
				b = &HeightBucket{Height: model.FormatHeight(key), meters: key}
				buckets[key] = b
			}
			b.Attempts++
			if j.Made() {
				b.Makes++
			}
		}
	}

	stats.SuccessRate = successRate(stats.Makes, stats.TotalJumps)
	stats.PersonalBest = formatBest(stats.personalBestMeters)
	if len(ratings) > 0 {
		stats.RatingCounts = ratings
	}
	if !stats.lastSession.IsZero() {
		stats.LastSessionDate = stats.lastSession.Format("2006-01-02")
	}
	if !stats.lastCompetition.IsZero() {
		stats.LastCompetitionDate = stats.lastCompetition.Format("2006-01-02")
	}

	for _, b := range buckets {
		if b.Attempts < heightBucketMinAttempts {
			continue
		}
		b.SuccessRate = successRate(b.Makes, b.Attempts)
		stats.HeightSuccessRate = append(stats.HeightSuccessRate, *b)
	}
	sort.Slice(stats.HeightSuccessRate, func(i, j int) bool {
		return stats.HeightSuccessRate[i].meters > stats.HeightSuccessRate[j].meters
	})
	if len(stats.HeightSuccessRate) > heightBucketTop {
		stats.HeightSuccessRate = stats.HeightSuccessRate[:heightBucketTop]
	}

	return stats
}

// PromptBlock renders the stats for the system prompt
func (s *UserStats) PromptBlock() string {
	var b strings.Builder
	b.WriteString("## Athlete stats (all time)\n\n")
	fmt.Fprintf(&b, "- Personal best: %s\n", s.PersonalBest)
	fmt.Fprintf(&b, "- Sessions logged: %d\n", s.TotalSessions)
	fmt.Fprintf(&b, "- Jumps logged: %d (%d makes)\n", s.TotalJumps, s.Makes)
	fmt.Fprintf(&b, "- Success rate: %d%%\n", s.SuccessRate)
	if s.LastSessionDate != "" {
		fmt.Fprintf(&b, "- Last session: %s\n", s.LastSessionDate)
	}
	return b.String()
}
