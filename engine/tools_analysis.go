package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ghiac/vaultcoach/model"
)

// Comparison types for compare_performance
const (
	CompareTimePeriods           = "time_periods"
	CompareTrainingVsCompetition = "training_vs_competition"
)

// Readiness levels reported by get_height_progression
const (
	ReadinessReady      = "ready"
	ReadinessClose      = "close"
	ReadinessDeveloping = "developing"
	ReadinessNotReady   = "not_ready"
	ReadinessNoData     = "no_data"
)

// Trends reported by get_height_progression
const (
	TrendImproving        = "improving"
	TrendDeclining        = "declining"
	TrendSteady           = "steady"
	TrendInsufficientData = "insufficient_data"
)

const (
	defaultTolerance = 0.05
	// trendThreshold is the change in success rate, in points, that counts
	// as a trend between the two halves of the history
	trendThreshold = 10
	// bestOfMinimum is the fewest attempts a pole or approach value needs
	// before it can be called the best one
	bestOfMinimum = 3
)

// techniqueFields maps analyze_technique field names to jump accessors
var techniqueFields = map[string]func(model.Jump) string{
	"steps":        func(j model.Jump) string { return j.Steps },
	"gripHeight":   func(j model.Jump) string { return j.GripHeight },
	"runUpLength":  func(j model.Jump) string { return j.RunUpLength },
	"takeoffPoint": func(j model.Jump) string { return j.TakeoffPoint },
	"midMark":      func(j model.Jump) string { return j.MidMark },
	"standards":    func(j model.Jump) string { return j.Standards },
}

// PerformanceGroup summarises one side of a comparison
type PerformanceGroup struct {
	Label         string `json:"label"`
	Sessions      int    `json:"sessions"`
	Jumps         int    `json:"jumps"`
	Makes         int    `json:"makes"`
	SuccessRate   int    `json:"successRate"`
	BestHeight    string `json:"bestHeight"`
	AverageHeight string `json:"averageHeight"`

	bestMeters float64
}

// PerformanceDifference is first minus second
type PerformanceDifference struct {
	SuccessRate      int     `json:"successRate"`
	BestHeightMeters float64 `json:"bestHeightMeters"`
}

// PerformanceComparison is the compare_performance result
type PerformanceComparison struct {
	ComparisonType string                `json:"comparisonType"`
	First          PerformanceGroup      `json:"first"`
	Second         PerformanceGroup      `json:"second"`
	Difference     PerformanceDifference `json:"difference"`
}

// PoleStats is the usage and success of one pole
type PoleStats struct {
	Pole          string `json:"pole"`
	Jumps         int    `json:"jumps"`
	Makes         int    `json:"makes"`
	SuccessRate   int    `json:"successRate"`
	BestHeight    string `json:"bestHeight"`
	AverageHeight string `json:"averageHeight"`
	LastUsed      string `json:"lastUsed,omitempty"`
}

// PoleAnalysis is the get_pole_analysis result
type PoleAnalysis struct {
	Poles    []PoleStats `json:"poles"`
	BestPole string      `json:"bestPole,omitempty"`
}

// ProgressionPoint is the attempts at the target height on one day
type ProgressionPoint struct {
	Date        string `json:"date"`
	Attempts    int    `json:"attempts"`
	Makes       int    `json:"makes"`
	SuccessRate int    `json:"successRate"`
}

// HeightProgression is the get_height_progression result
type HeightProgression struct {
	TargetHeight string             `json:"targetHeight"`
	Tolerance    float64            `json:"tolerance"`
	Attempts     int                `json:"attempts"`
	Makes        int                `json:"makes"`
	SuccessRate  int                `json:"successRate"`
	Readiness    string             `json:"readiness"`
	Trend        string             `json:"trend"`
	History      []ProgressionPoint `json:"history"`
}

// TechniqueValue is the success at one value of an approach field
type TechniqueValue struct {
	Value       string `json:"value"`
	Attempts    int    `json:"attempts"`
	Makes       int    `json:"makes"`
	SuccessRate int    `json:"successRate"`
	BestHeight  string `json:"bestHeight"`
}

// TechniqueAnalysis is the analyze_technique result
type TechniqueAnalysis struct {
	Field     string           `json:"field"`
	Values    []TechniqueValue `json:"values"`
	BestValue string           `json:"bestValue,omitempty"`
}

func (x *Executor) comparePerformance(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	sessions, err := x.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	comparison := &PerformanceComparison{ComparisonType: args.String("comparisonType", CompareTimePeriods)}

	switch comparison.ComparisonType {
	case CompareTrainingVsCompetition:
		var training, competition []*model.Session
		for _, s := range sessions {
			if s.IsCompetition() {
				competition = append(competition, s)
			} else {
				training = append(training, s)
			}
		}
		comparison.First = summarizeGroup("Training", training)
		comparison.Second = summarizeGroup("Competition", competition)

	case CompareTimePeriods:
		today := dayOf(x.clock())
		p1Start := dayArg(args, "period1Start", today.AddDate(0, 0, -29))
		p1End := dayArg(args, "period1End", today)
		p2End := dayArg(args, "period2End", p1Start.AddDate(0, 0, -1))
		p2Start := dayArg(args, "period2Start", p2End.AddDate(0, 0, -29))

		comparison.First = summarizeGroup(periodLabel(p1Start, p1End), sessionsBetween(sessions, p1Start, p1End))
		comparison.Second = summarizeGroup(periodLabel(p2Start, p2End), sessionsBetween(sessions, p2Start, p2End))

	default:
		return map[string]interface{}{"error": "Unsupported comparisonType: " + comparison.ComparisonType}, nil
	}

	comparison.Difference = PerformanceDifference{
		SuccessRate:      comparison.First.SuccessRate - comparison.Second.SuccessRate,
		BestHeightMeters: model.RoundHeight(comparison.First.bestMeters - comparison.Second.bestMeters),
	}
	return comparison, nil
}

func dayArg(args model.Args, key string, def time.Time) time.Time {
	if t := parseDay(args.String(key, "")); !t.IsZero() {
		return t
	}
	return def
}

func periodLabel(start, end time.Time) string {
	return start.Format("2006-01-02") + " to " + end.Format("2006-01-02")
}

func sessionsBetween(sessions []*model.Session, start, end time.Time) []*model.Session {
	var out []*model.Session
	for _, s := range sessions {
		if !s.Date.IsZero() && withinDays(s.Date, start, end) {
			out = append(out, s)
		}
	}
	return out
}

func summarizeGroup(label string, sessions []*model.Session) PerformanceGroup {
	var t tally
	for _, s := range sessions {
		for _, j := range s.Jumps {
			t.add(j)
		}
	}
	return PerformanceGroup{
		Label:         label,
		Sessions:      len(sessions),
		Jumps:         t.attempts,
		Makes:         t.makes,
		SuccessRate:   t.rate(),
		BestHeight:    formatBest(t.best),
		AverageHeight: t.average(),
		bestMeters:    t.best,
	}
}

func (x *Executor) getPoleAnalysis(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	sessions, err := x.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return analyzePoles(sessions, args.String("pole", ""), args.Int("minJumps", 1)), nil
}

// analyzePoles groups identified poles; jumps without pole data are skipped
func analyzePoles(sessions []*model.Session, filter string, minJumps int) *PoleAnalysis {
	type poleTally struct {
		tally
		lastUsed time.Time
	}
	tallies := make(map[string]*poleTally)

	for _, r := range flattenJumps(sessions) {
		if r.jump.Pole.IsZero() {
			continue
		}
		label := r.jump.Pole.Label()
		if filter != "" && !containsFold(label, filter) {
			continue
		}
		t, ok := tallies[label]
		if !ok {
			t = &poleTally{}
			tallies[label] = t
		}
		t.add(r.jump)
		if r.session.Date.After(t.lastUsed) {
			t.lastUsed = r.session.Date
		}
	}

	analysis := &PoleAnalysis{Poles: []PoleStats{}}
	bestRate, bestJumps := -1, 0
	for label, t := range tallies {
		if t.attempts < minJumps {
			continue
		}
		ps := PoleStats{
			Pole:          label,
			Jumps:         t.attempts,
			Makes:         t.makes,
			SuccessRate:   t.rate(),
			BestHeight:    formatBest(t.best),
			AverageHeight: t.average(),
		}
		if !t.lastUsed.IsZero() {
			ps.LastUsed = t.lastUsed.Format("2006-01-02")
		}
		analysis.Poles = append(analysis.Poles, ps)

		if t.attempts >= bestOfMinimum && betterRate(ps.SuccessRate, t.attempts, label, bestRate, bestJumps, analysis.BestPole) {
			bestRate, bestJumps, analysis.BestPole = ps.SuccessRate, t.attempts, label
		}
	}

	sort.Slice(analysis.Poles, func(i, j int) bool {
		a, b := analysis.Poles[i], analysis.Poles[j]
		if a.Jumps != b.Jumps {
			return a.Jumps > b.Jumps
		}
		return a.Pole < b.Pole
	})
	return analysis
}

// betterRate orders candidates by rate, then attempts, then name so the
// choice does not depend on map iteration order
func betterRate(rate, attempts int, name string, bestRate, bestAttempts int, bestName string) bool {
	if rate != bestRate {
		return rate > bestRate
	}
	if attempts != bestAttempts {
		return attempts > bestAttempts
	}
	return bestName == "" || name < bestName
}

func (x *Executor) getHeightProgression(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	target, ok := heightArg(args, "targetHeight")
	if !ok {
		return map[string]interface{}{"error": "targetHeight is required"}, nil
	}
	tolerance := args.Float("tolerance", defaultTolerance)
	if tolerance < 0 {
		tolerance = defaultTolerance
	}

	sessions, err := x.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	timeframe := normalizeTimeframe(args.String("timeframe", TimeframeAll))
	sessions = sessionsSince(sessions, timeframeStart(timeframe, x.clock()))

	return heightProgression(sessions, target, tolerance), nil
}

// heightProgression collects attempts within target ± tolerance, oldest day first
func heightProgression(sessions []*model.Session, target, tolerance float64) *HeightProgression {
	progression := &HeightProgression{
		TargetHeight: model.FormatHeight(target),
		Tolerance:    tolerance,
		History:      []ProgressionPoint{},
	}

	byDay := make(map[string]*ProgressionPoint)
	for _, s := range sessions {
		for _, j := range s.Jumps {
			if j.HeightMeters <= 0 || math.Abs(j.HeightMeters-target) > tolerance+1e-9 {
				continue
			}
			date := s.DateString()
			p, ok := byDay[date]
			if !ok {
				p = &ProgressionPoint{Date: date}
				byDay[date] = p
			}
			p.Attempts++
			progression.Attempts++
			if j.Made() {
				p.Makes++
				progression.Makes++
			}
		}
	}

	for _, p := range byDay {
		p.SuccessRate = successRate(p.Makes, p.Attempts)
		progression.History = append(progression.History, *p)
	}
	sort.Slice(progression.History, func(i, j int) bool {
		return progression.History[i].Date < progression.History[j].Date
	})

	progression.SuccessRate = successRate(progression.Makes, progression.Attempts)
	progression.Readiness = readiness(progression.Attempts, progression.SuccessRate)
	progression.Trend = trend(progression.History)
	return progression
}

func readiness(attempts, rate int) string {
	switch {
	case attempts == 0:
		return ReadinessNoData
	case rate >= 66:
		return ReadinessReady
	case rate >= 50:
		return ReadinessClose
	case rate >= 33:
		return ReadinessDeveloping
	default:
		return ReadinessNotReady
	}
}

// trend compares the success rate of the older half of the history with the
// newer half
func trend(history []ProgressionPoint) string {
	if len(history) < 2 {
		return TrendInsufficientData
	}
	half := len(history) / 2
	var older, newer tally
	for i, p := range history {
		t := &newer
		if i < half {
			t = &older
		}
		t.attempts += p.Attempts
		t.makes += p.Makes
	}
	switch diff := newer.rate() - older.rate(); {
	case diff >= trendThreshold:
		return TrendImproving
	case diff <= -trendThreshold:
		return TrendDeclining
	default:
		return TrendSteady
	}
}

func (x *Executor) analyzeTechnique(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	field := args.String("field", "steps")
	if _, ok := techniqueFields[field]; !ok {
		return map[string]interface{}{"error": "Unsupported field: " + field}, nil
	}

	sessions, err := x.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return analyzeTechnique(sessions, field, args.Int("minAttempts", 1)), nil
}

// analyzeTechnique groups jumps by an approach field; empty values are skipped
func analyzeTechnique(sessions []*model.Session, field string, minAttempts int) *TechniqueAnalysis {
	value := techniqueFields[field]
	tallies := make(map[string]*tally)

	for _, r := range flattenJumps(sessions) {
		v := strings.TrimSpace(value(r.jump))
		if v == "" {
			continue
		}
		t, ok := tallies[v]
		if !ok {
			t = &tally{}
			tallies[v] = t
		}
		t.add(r.jump)
	}

	analysis := &TechniqueAnalysis{Field: field, Values: []TechniqueValue{}}
	bestRate, bestAttempts := -1, 0
	for v, t := range tallies {
		if t.attempts < minAttempts {
			continue
		}
		tv := TechniqueValue{
			Value:       v,
			Attempts:    t.attempts,
			Makes:       t.makes,
			SuccessRate: t.rate(),
			BestHeight:  formatBest(t.best),
		}
		analysis.Values = append(analysis.Values, tv)

		if t.attempts >= bestOfMinimum && betterRate(tv.SuccessRate, t.attempts, v, bestRate, bestAttempts, analysis.BestValue) {
			bestRate, bestAttempts, analysis.BestValue = tv.SuccessRate, t.attempts, v
		}
	}

	sort.Slice(analysis.Values, func(i, j int) bool {
		a, b := analysis.Values[i], analysis.Values[j]
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.Value < b.Value
	})
	return analysis
}
