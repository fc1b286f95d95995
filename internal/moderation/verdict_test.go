package moderation

import "testing"

func TestDecodeVerdictComplete(t *testing.T) {
	data := []byte(`{
		"harmfulness_level": "high",
		"reasons": ["harassment", "slurs"],
		"action_required": "warn users",
		"user_scores": {"alice": -2, "bob": 1}
	}`)

	v := DecodeVerdict(data)
	if v.HarmfulnessLevel != "high" {
		t.Errorf("expected level %q, got %q", "high", v.HarmfulnessLevel)
	}
	if len(v.Reasons) != 2 || v.Reasons[0] != "harassment" {
		t.Errorf("unexpected reasons: %v", v.Reasons)
	}
	if v.ActionRequired != "warn users" {
		t.Errorf("unexpected action: %q", v.ActionRequired)
	}
	if v.Delta("alice") != -2 || v.Delta("bob") != 1 {
		t.Errorf("unexpected deltas: %v", v.UserScores)
	}
}

func TestDecodeVerdictMalformedJSON(t *testing.T) {
	v := DecodeVerdict([]byte(`not json at all`))

	if v.HarmfulnessLevel != LevelNone {
		t.Errorf("expected neutral level, got %q", v.HarmfulnessLevel)
	}
	if len(v.Reasons) != 0 || len(v.UserScores) != 0 {
		t.Errorf("expected empty neutral verdict, got %+v", v)
	}
}

func TestDecodeVerdictMissingFields(t *testing.T) {
	v := DecodeVerdict([]byte(`{"harmfulness_level": "low"}`))

	if v.HarmfulnessLevel != "low" {
		t.Errorf("expected level %q, got %q", "low", v.HarmfulnessLevel)
	}
	if v.Reasons == nil {
		t.Error("expected Reasons to be normalized to empty slice")
	}
	if v.UserScores == nil {
		t.Error("expected UserScores to be normalized to empty map")
	}
}

func TestDecodeVerdictEmptyObject(t *testing.T) {
	v := DecodeVerdict([]byte(`{}`))

	if v.HarmfulnessLevel != LevelNone {
		t.Errorf("expected default level %q, got %q", LevelNone, v.HarmfulnessLevel)
	}
}

func TestDeltaDefaultsToZero(t *testing.T) {
	v := NeutralVerdict()

	if got := v.Delta("nobody"); got != 0 {
		t.Errorf("expected 0 for unknown author, got %d", got)
	}
}
