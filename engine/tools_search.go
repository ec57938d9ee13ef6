package engine

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/store"
)

// SessionSummary is one search_sessions result
type SessionSummary struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	Location        string `json:"location"`
	SessionType     string `json:"sessionType"`
	CompetitionName string `json:"competitionName,omitempty"`
	JumpCount       int    `json:"jumpCount"`
	HasVideo        bool   `json:"hasVideo"`
	BestHeight      string `json:"bestHeight"`
}

// JumpResult is one search_jumps result: a jump with its session context
type JumpResult struct {
	SessionID       string  `json:"sessionId"`
	SessionDate     string  `json:"sessionDate"`
	Location        string  `json:"location"`
	SessionType     string  `json:"sessionType"`
	CompetitionName string  `json:"competitionName,omitempty"`
	JumpIndex       int     `json:"jumpIndex"`
	Height          string  `json:"height"`
	HeightMeters    float64 `json:"heightMeters"`
	Rating          string  `json:"rating,omitempty"`
	Result          string  `json:"result"`
	BarClearance    string  `json:"barClearance,omitempty"`
	Pole            string  `json:"pole,omitempty"`
	Steps           string  `json:"steps,omitempty"`
	GripHeight      string  `json:"gripHeight,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	VideoURL        string  `json:"videoUrl,omitempty"`
	HasVideo        bool    `json:"hasVideo"`
	IsFavorite      bool    `json:"isFavorite"`
	IsWarmup        bool    `json:"isWarmup"`
}

// IndexedJump is a jump with its zero-based position in the session
type IndexedJump struct {
	Index int `json:"index"`
	model.Jump
	HeightMeters float64 `json:"heightMeters"`
}

// SessionDetails is the get_session_details result
type SessionDetails struct {
	*model.Session
	Jumps []IndexedJump `json:"jumps"`
}

func (x *Executor) searchSessions(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	sessions, err := x.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := parseDay(args.String("startDate", ""))
	end := parseDay(args.String("endDate", ""))
	location := args.String("location", "")
	competition := args.String("competitionName", "")
	sessionType := args.String("sessionType", "")
	limit := limitArg(args)

	results := make([]SessionSummary, 0, limit)
	for _, s := range sessions {
		if len(results) >= limit {
			break
		}
		if !withinDays(s.Date, start, end) {
			continue
		}
		if location != "" && !containsFold(s.Location, location) {
			continue
		}
		if competition != "" && !containsFold(s.CompetitionName, competition) {
			continue
		}
		if sessionType != "" && !strings.EqualFold(s.SessionType, sessionType) {
			continue
		}
		results = append(results, summarizeSession(s))
	}
	return results, nil
}

func summarizeSession(s *model.Session) SessionSummary {
	return SessionSummary{
		ID:              s.ID,
		Date:            s.DateString(),
		Location:        s.Location,
		SessionType:     s.SessionType,
		CompetitionName: s.CompetitionName,
		JumpCount:       len(s.Jumps),
		HasVideo:        s.HasVideo(),
		BestHeight:      formatBest(s.BestHeight()),
	}
}

func (x *Executor) searchJumps(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	sessions, err := x.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	minHeight := args.Float("minHeight", 0)
	maxHeight := args.Float("maxHeight", 0)
	rating := args.String("rating", "")
	result := args.String("result", "")
	hasVideo := args.OptionalBool("hasVideo")
	isFavorite := args.OptionalBool("isFavorite")
	limit := limitArg(args)

	records := flattenJumps(sessions)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].session.Date.After(records[j].session.Date)
	})

	results := make([]JumpResult, 0, limit)
	for _, r := range records {
		if len(results) >= limit {
			break
		}
		j := r.jump
		if minHeight > 0 && j.HeightMeters < minHeight {
			continue
		}
		if maxHeight > 0 && j.HeightMeters > maxHeight {
			continue
		}
		if rating != "" && !strings.EqualFold(j.Rating, rating) {
			continue
		}
		if result != "" && !strings.EqualFold(resultOf(j), result) {
			continue
		}
		if hasVideo != nil && j.HasVideo() != *hasVideo {
			continue
		}
		if isFavorite != nil && j.IsFavorite != *isFavorite {
			continue
		}
		results = append(results, toJumpResult(r))
	}
	return results, nil
}

func toJumpResult(r jumpRecord) JumpResult {
	j := r.jump
	out := JumpResult{
		SessionID:       r.session.ID,
		SessionDate:     r.session.DateString(),
		Location:        r.session.Location,
		SessionType:     r.session.SessionType,
		CompetitionName: r.session.CompetitionName,
		JumpIndex:       r.index,
		Height:          j.Height,
		HeightMeters:    model.RoundHeight(j.HeightMeters),
		Rating:          j.Rating,
		Result:          resultOf(j),
		BarClearance:    j.BarClearance,
		Steps:           j.Steps,
		GripHeight:      j.GripHeight,
		Notes:           j.Notes,
		VideoURL:        j.VideoURL,
		HasVideo:        j.HasVideo(),
		IsFavorite:      j.IsFavorite,
		IsWarmup:        j.IsWarmup,
	}
	if !j.Pole.IsZero() {
		out.Pole = j.Pole.Label()
	}
	return out
}

// resultOf treats a missing result as a miss
func resultOf(j model.Jump) string {
	if j.Result == "" {
		return model.ResultNoMake
	}
	return j.Result
}

func (x *Executor) getSessionDetails(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	sessionID := args.String("sessionId", "")
	if sessionID == "" {
		return map[string]interface{}{"error": "Session not found"}, nil
	}

	session, err := x.Sessions.GetSession(ctx, userID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]interface{}{"error": "Session not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	jumps := make([]IndexedJump, len(session.Jumps))
	for i, j := range session.Jumps {
		jumps[i] = IndexedJump{Index: i, Jump: j, HeightMeters: model.RoundHeight(j.HeightMeters)}
	}
	return SessionDetails{Session: session, Jumps: jumps}, nil
}

// navigateTo performs no data access; the client interprets the intent
func (x *Executor) navigateTo(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	return map[string]interface{}(args.Without()), nil
}
