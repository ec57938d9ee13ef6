package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DecodeSession decodes a stored session document and normalizes it.
// Every consumer reads the returned struct; no other code deals with the
// loose document shape.
func DecodeSession(id string, data []byte) (*Session, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return NormalizeSession(id, raw), nil
}

// EncodeSession serializes a session to its stored document form
func EncodeSession(s *Session) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	return json.Marshal(s)
}

// NormalizeSession builds a Session from a loosely typed document,
// substituting defaults for absent or mistyped fields.
func NormalizeSession(id string, raw map[string]interface{}) *Session {
	if id == "" {
		id = textField(raw, "id")
	}
	s := &Session{
		ID:               id,
		Date:             ParseDate(firstPresent(raw, "date", "sessionDate")),
		Location:         textField(raw, "location"),
		SessionType:      normalizeSessionType(textField(raw, "sessionType", "type")),
		CompetitionName:  textField(raw, "competitionName", "competition"),
		CompetitionPhase: textField(raw, "competitionPhase", "phase"),
		Weather:          textField(raw, "weather"),
		Temperature:      textField(raw, "temperature"),
		WindSpeed:        textField(raw, "windSpeed", "wind"),
		WindDirection:    textField(raw, "windDirection"),
		EnergyLevel:      textField(raw, "energyLevel", "energy"),
		SessionGoal:      textField(raw, "sessionGoal", "goal"),
		MentalNotes:      textField(raw, "mentalNotes"),
		Notes:            textField(raw, "notes", "postSessionNotes", "sessionNotes"),
		CreatedAt:        ParseDate(raw["createdAt"]),
		UpdatedAt:        ParseDate(raw["updatedAt"]),
		Jumps:            []Jump{},
	}

	if list, ok := raw["jumps"].([]interface{}); ok {
		for _, item := range list {
			if jm, ok := item.(map[string]interface{}); ok {
				s.Jumps = append(s.Jumps, normalizeJump(jm))
			}
		}
	}
	return s
}

func normalizeJump(raw map[string]interface{}) Jump {
	j := Jump{
		Height:       textField(raw, "height", "barHeight"),
		Rating:       strings.ToLower(textField(raw, "rating")),
		Result:       strings.ToLower(textField(raw, "result")),
		BarClearance: textField(raw, "barClearance"),
		Pole:         normalizePole(raw["pole"]),
		Steps:        textField(raw, "steps"),
		GripHeight:   textField(raw, "gripHeight"),
		RunUpLength:  textField(raw, "runUpLength"),
		TakeoffPoint: textField(raw, "takeoffPoint", "takeOff"),
		MidMark:      textField(raw, "midMark"),
		Standards:    textField(raw, "standards"),
		Notes:        textField(raw, "notes"),
		VideoURL:     textField(raw, "videoUrl", "videoURL", "videoUri", "videoLocalUri"),
		IsFavorite:   boolField(raw, "isFavorite", "favorite"),
		IsWarmup:     boolField(raw, "isWarmup", "warmup"),
	}
	if j.Result == "" {
		j.Result = ResultNoMake
	}
	j.HeightMeters = ParseHeight(j.Height)
	return j
}

func normalizePole(v interface{}) Pole {
	switch t := v.(type) {
	case map[string]interface{}:
		return Pole{
			Brand:  textField(t, "brand"),
			Length: textField(t, "length"),
			Weight: textField(t, "weight"),
			Flex:   textField(t, "flex"),
		}
	case nil:
		return Pole{}
	default:
		return Pole{Freeform: strings.TrimSpace(AsString(t))}
	}
}

func normalizeSessionType(v string) string {
	switch strings.ToLower(v) {
	case "competition", "meet", "comp":
		return SessionTypeCompetition
	default:
		return SessionTypeTraining
	}
}

// ParseDate accepts YYYY-MM-DD, RFC3339, epoch numbers (milliseconds or
// seconds) and timestamp objects {seconds, nanoseconds}. Anything else
// yields the zero time.
func ParseDate(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		return parseDateString(t)
	case float64:
		return fromEpoch(t)
	case int64:
		return fromEpoch(float64(t))
	case int:
		return fromEpoch(float64(t))
	case map[string]interface{}:
		secs, ok := AsFloat(firstPresent(t, "seconds", "_seconds"))
		if !ok {
			return time.Time{}
		}
		nanos, _ := AsFloat(firstPresent(t, "nanoseconds", "_nanoseconds"))
		return time.Unix(int64(secs), int64(nanos)).UTC()
	}
	return time.Time{}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

func parseDateString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func fromEpoch(n float64) time.Time {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}
	}
	// Values this large are milliseconds
	if n > 1e11 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

func firstPresent(raw map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func textField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(AsString(raw[k])); s != "" {
			return s
		}
	}
	return ""
}

func boolField(raw map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if b, ok := AsBool(raw[k]); ok {
			return b
		}
	}
	return false
}
