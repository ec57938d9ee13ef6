package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ghiac/vaultcoach/model"
)

// Recommendation focus areas
const (
	FocusGeneral     = "general"
	FocusHeight      = "height"
	FocusTechnique   = "technique"
	FocusCompetition = "competition"
)

const (
	// nextHeightStep is the raise above the personal best used to judge readiness
	nextHeightStep = 0.05
	// failedTakeoffShare is the glider and run-through share, in percent, that
	// triggers takeoff drills
	failedTakeoffShare = 30
	competitionGapDays = 60
	inactiveDays       = 14
	maxStepVariants    = 3
)

// TrainingRecommendations is the get_training_recommendations result
type TrainingRecommendations struct {
	Focus           string   `json:"focus"`
	Recommendations []string `json:"recommendations"`
	PersonalBest    string   `json:"personalBest"`
	NextHeight      string   `json:"nextHeight,omitempty"`
	Readiness       string   `json:"readiness,omitempty"`
}

type recommendation struct {
	focus string
	text  string
}

func (x *Executor) getTrainingRecommendations(ctx context.Context, userID string, args model.Args) (interface{}, error) {
	focus := args.String("focus", FocusGeneral)

	var (
		allTime, month *UserStats
		poles          *PoleAnalysis
		steps          *TechniqueAnalysis
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		allTime, err = x.userStats(gctx, userID, TimeframeAll)
		return err
	})
	g.Go(func() (err error) {
		month, err = x.userStats(gctx, userID, TimeframeMonth)
		return err
	})
	g.Go(func() error {
		sessions, err := x.loadSessions(gctx, userID)
		if err != nil {
			return err
		}
		poles = analyzePoles(sessions, "", 1)
		steps = analyzeTechnique(sessions, "steps", 1)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &TrainingRecommendations{Focus: focus, PersonalBest: allTime.PersonalBest}

	if allTime.TotalJumps == 0 {
		result.Recommendations = []string{
			"Log your first session with jump heights and results so I can track your progress and suggest what to work on.",
		}
		return result, nil
	}

	var next *HeightProgression
	if allTime.personalBestMeters > 0 {
		target := allTime.personalBestMeters + nextHeightStep
		sessions, err := x.loadSessions(ctx, userID)
		if err != nil {
			return nil, err
		}
		next = heightProgression(sessions, target, defaultTolerance/2)
		result.NextHeight = next.TargetHeight
		result.Readiness = next.Readiness
	}

	recs := buildRecommendations(allTime, month, next, poles, steps, x.clock())
	result.Recommendations = orderByFocus(recs, focus)
	return result, nil
}

// buildRecommendations applies the threshold rules. It always returns at
// least one recommendation.
func buildRecommendations(allTime, month *UserStats, next *HeightProgression, poles *PoleAnalysis, steps *TechniqueAnalysis, now time.Time) []recommendation {
	var recs []recommendation
	add := func(focus, format string, args ...interface{}) {
		recs = append(recs, recommendation{focus: focus, text: fmt.Sprintf(format, args...)})
	}

	if month != nil && month.TotalJumps > 0 {
		switch rate := month.SuccessRate; {
		case rate < 33:
			add(FocusHeight, "Your success rate this month is %d%%. Drop the bar 10 to 15 cm and rebuild consistent clearances before pushing heights again.", rate)
		case rate < 50:
			add(FocusTechnique, "Your success rate this month is %d%%. Spend more attempts at heights you clear regularly and focus on a consistent takeoff.", rate)
		case rate >= 66:
			add(FocusHeight, "You are clearing %d%% of your attempts this month. You are ready to raise the bar.", rate)
		}
	}

	if next != nil {
		switch next.Readiness {
		case ReadinessReady, ReadinessClose:
			add(FocusHeight, "You are clearing %d%% of attempts around %s. Make it your next target in training and competition.", next.SuccessRate, next.TargetHeight)
		case ReadinessDeveloping:
			add(FocusHeight, "Keep taking attempts around %s. You clear %d%% there, so it is within reach.", next.TargetHeight, next.SuccessRate)
		default:
			add(FocusHeight, "Start taking a few attempts at %s in training to get used to the next height above your personal best of %s.", next.TargetHeight, allTime.PersonalBest)
		}
	}

	if poles != nil && poles.BestPole != "" {
		for _, p := range poles.Poles {
			if p.Pole == poles.BestPole {
				add(FocusTechnique, "Your %s has your best success rate (%d%% over %d jumps). Use it for your key attempts.", p.Pole, p.SuccessRate, p.Jumps)
				break
			}
		}
	}

	if steps != nil && len(steps.Values) >= maxStepVariants {
		if steps.BestValue != "" {
			add(FocusTechnique, "You have used %d different step counts. Your best success comes from %s steps, so settle on that approach.", len(steps.Values), steps.BestValue)
		} else {
			add(FocusTechnique, "You have used %d different step counts. Settling on one approach will make your run more consistent.", len(steps.Values))
		}
	}

	if allTime.TotalJumps > 0 {
		failed := allTime.RatingCounts[model.RatingGlider] + allTime.RatingCounts[model.RatingRunThru]
		if share := successRate(failed, allTime.TotalJumps); share > failedTakeoffShare {
			add(FocusTechnique, "%d%% of your jumps are gliders or run-throughs. Work on plant and takeoff drills before moving up grip or pole.", share)
		}
	}

	if allTime.lastCompetition.IsZero() || now.Sub(allTime.lastCompetition) > competitionGapDays*24*time.Hour {
		add(FocusCompetition, "You have not competed in the last %d days. Plan a meet to test your heights under competition conditions.", competitionGapDays)
	}

	if !allTime.lastSession.IsZero() {
		if days := int(now.Sub(allTime.lastSession).Hours() / 24); days > inactiveDays {
			add(FocusGeneral, "You have not logged a session in %d days. Get back on the runway with a short technique session.", days)
		}
	}

	if len(recs) == 0 {
		add(FocusGeneral, "Keep logging every session with heights, results and pole details so the recommendations can get more specific.")
	}
	return recs
}

// orderByFocus moves recommendations for the requested focus to the front
func orderByFocus(recs []recommendation, focus string) []string {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].focus == focus && recs[j].focus != focus
	})
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.text
	}
	return out
}
