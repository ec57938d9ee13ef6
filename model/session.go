package model

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Context key for user ID
type userIDKey struct{}

// WithUserID adds user_id to context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserIDFromContext retrieves user_id from context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}

// Session types
const (
	SessionTypeTraining    = "Training"
	SessionTypeCompetition = "Competition"
)

// Jump ratings
const (
	RatingGreat   = "great"
	RatingGood    = "good"
	RatingOK      = "ok"
	RatingGlider  = "glider"
	RatingRunThru = "runthru"
)

// Jump results
const (
	ResultMake   = "make"
	ResultNoMake = "no-make"
)

// Session is one training or competition occurrence for a user
type Session struct {
	ID               string    `json:"id"`
	Date             time.Time `json:"date"`
	Location         string    `json:"location,omitempty"`
	SessionType      string    `json:"sessionType"`
	CompetitionName  string    `json:"competitionName,omitempty"`
	CompetitionPhase string    `json:"competitionPhase,omitempty"`

	// Environment
	Weather       string `json:"weather,omitempty"`
	Temperature   string `json:"temperature,omitempty"`
	WindSpeed     string `json:"windSpeed,omitempty"`
	WindDirection string `json:"windDirection,omitempty"`

	// Athlete state
	EnergyLevel string `json:"energyLevel,omitempty"`
	SessionGoal string `json:"sessionGoal,omitempty"`
	MentalNotes string `json:"mentalNotes,omitempty"`

	Notes string `json:"notes,omitempty"`
	Jumps []Jump `json:"jumps"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Jump is one vault attempt embedded in a session
type Jump struct {
	Height       string  `json:"height"`
	HeightMeters float64 `json:"-"`
	Rating       string  `json:"rating,omitempty"`
	Result       string  `json:"result"`
	BarClearance string  `json:"barClearance,omitempty"`
	Pole         Pole    `json:"pole"`

	// Approach
	Steps        string `json:"steps,omitempty"`
	GripHeight   string `json:"gripHeight,omitempty"`
	RunUpLength  string `json:"runUpLength,omitempty"`
	TakeoffPoint string `json:"takeoffPoint,omitempty"`
	MidMark      string `json:"midMark,omitempty"`
	Standards    string `json:"standards,omitempty"`

	Notes      string `json:"notes,omitempty"`
	VideoURL   string `json:"videoUrl,omitempty"`
	IsFavorite bool   `json:"isFavorite,omitempty"`
	IsWarmup   bool   `json:"isWarmup,omitempty"`
}

// Pole describes the pole used for a jump. Older records store a single
// freeform string; newer ones store the structured fields.
type Pole struct {
	Brand    string `json:"brand,omitempty"`
	Length   string `json:"length,omitempty"`
	Weight   string `json:"weight,omitempty"`
	Flex     string `json:"flex,omitempty"`
	Freeform string `json:"-"`
}

// UnknownPole labels jumps with no pole information
const UnknownPole = "Unknown pole"

// IsZero reports whether no pole information is present
func (p Pole) IsZero() bool {
	return p.Brand == "" && p.Length == "" && p.Weight == "" && p.Flex == "" && p.Freeform == ""
}

// Label returns a stable identity for grouping jumps by pole
func (p Pole) Label() string {
	var parts []string
	for _, s := range []string{p.Brand, p.Length, p.Weight, p.Flex} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		if f := strings.TrimSpace(p.Freeform); f != "" {
			return f
		}
		return UnknownPole
	}
	return strings.Join(parts, " ")
}

// MarshalJSON writes freeform poles back as plain strings
func (p Pole) MarshalJSON() ([]byte, error) {
	if p.Brand == "" && p.Length == "" && p.Weight == "" && p.Flex == "" {
		if p.Freeform == "" {
			return []byte("null"), nil
		}
		return json.Marshal(p.Freeform)
	}
	type structured Pole
	return json.Marshal(structured(p))
}

// Made reports whether the bar was cleared
func (j Jump) Made() bool {
	return j.Result == ResultMake
}

// HasVideo reports whether a video is attached
func (j Jump) HasVideo() bool {
	return strings.TrimSpace(j.VideoURL) != ""
}

// DateString formats the session date as YYYY-MM-DD
func (s *Session) DateString() string {
	if s.Date.IsZero() {
		return ""
	}
	return s.Date.Format("2006-01-02")
}

// HasVideo reports whether any jump carries a video
func (s *Session) HasVideo() bool {
	for _, j := range s.Jumps {
		if j.HasVideo() {
			return true
		}
	}
	return false
}

// BestHeight returns the highest parsed jump height (> 0) regardless of result
func (s *Session) BestHeight() float64 {
	best := 0.0
	for _, j := range s.Jumps {
		if j.HeightMeters > best {
			best = j.HeightMeters
		}
	}
	return best
}

// IsCompetition reports whether this session was a competition
func (s *Session) IsCompetition() bool {
	return strings.EqualFold(s.SessionType, SessionTypeCompetition)
}

// SortSessionsByDateDesc orders sessions newest first. Sessions on the same
// date are ordered by ID so every backend returns the same order.
func SortSessionsByDateDesc(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.After(sessions[j].Date)
		}
		return sessions[i].ID < sessions[j].ID
	})
}
