package engine

import "context"

// Phase is a step of one chat turn
type Phase string

const (
	PhaseReceived       Phase = "received"
	PhaseAskingModel    Phase = "asking_model"
	PhaseToolsRequested Phase = "tools_requested"
	PhaseRunningTool    Phase = "running_tool"
	PhaseAnswered       Phase = "answered"
	PhaseFailed         Phase = "failed"
)

// Progress is reported as a chat turn advances. Round is the tool round,
// zero outside the tool loop. Detail carries the model name, the requested
// tool names, a tool's progress label or the failure text, depending on Phase.
type Progress struct {
	UserID string
	Phase  Phase
	Round  int
	Detail string
}

// ProgressFunc receives the progress of a single request. Tools of one round
// run concurrently, so it may be called from several goroutines.
type ProgressFunc func(Progress)

type progressKey struct{}

// WithProgress returns a context whose chat turn reports to fn
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func report(ctx context.Context, userID string, phase Phase, round int, detail string) {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	if fn == nil {
		return
	}
	fn(Progress{UserID: userID, Phase: phase, Round: round, Detail: detail})
}
