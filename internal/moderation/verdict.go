package moderation

import "encoding/json"

// LevelNone is the harmfulness level of the neutral verdict.
const LevelNone = "none"

// Verdict is the classifier's structured judgment on a batch of messages.
// HarmfulnessLevel and ActionRequired are opaque display data; UserScores
// maps author display names to signed score deltas.
type Verdict struct {
	HarmfulnessLevel string         `json:"harmfulness_level"`
	Reasons          []string       `json:"reasons"`
	ActionRequired   string         `json:"action_required"`
	UserScores       map[string]int `json:"user_scores"`
}

// NeutralVerdict returns the no-op verdict substituted for a failed or
// malformed classifier response: level "none", no reasons, no deltas.
func NeutralVerdict() *Verdict {
	return &Verdict{
		HarmfulnessLevel: LevelNone,
		Reasons:          []string{},
		UserScores:       map[string]int{},
	}
}

// DecodeVerdict parses a classifier response body into a Verdict. Invalid
// JSON maps to the neutral verdict; missing fields get the neutral defaults.
// This is the only place a loosely shaped classifier response enters the
// system, so every field is normalized here.
func DecodeVerdict(data []byte) *Verdict {
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return NeutralVerdict()
	}
	v.normalize()
	return &v
}

func (v *Verdict) normalize() {
	if v.HarmfulnessLevel == "" {
		v.HarmfulnessLevel = LevelNone
	}
	if v.Reasons == nil {
		v.Reasons = []string{}
	}
	if v.UserScores == nil {
		v.UserScores = map[string]int{}
	}
}

// Delta returns the score delta for an author display name, defaulting to 0
// when the verdict does not mention the author.
func (v *Verdict) Delta(displayName string) int {
	return v.UserScores[displayName]
}
