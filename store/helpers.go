package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ghiac/vaultcoach/model"
)

// prepareSession assigns an id when missing, stamps timestamps and
// returns the encoded document
func prepareSession(session *model.Session) ([]byte, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	return model.EncodeSession(session)
}

// sessionDateKey is the sortable date stored next to each document
func sessionDateKey(session *model.Session) int64 {
	if session.Date.IsZero() {
		return 0
	}
	return session.Date.Unix()
}

func sortToolCalls(calls []*model.ToolCall) {
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].CreatedAt.Before(calls[j].CreatedAt)
	})
}
