package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAnswerAcceptsNumbersAndText(t *testing.T) {
	var responses map[string]Answer
	if err := json.Unmarshal([]byte(`{"a":7,"b":"every_meal","c":"4.5","d":null}`), &responses); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := responses["a"].Float(); !ok || v != 7 {
		t.Fatalf("expected numeric 7, got %v %v", v, ok)
	}
	if responses["b"].ChoiceID() != "every_meal" {
		t.Fatalf("unexpected choice %q", responses["b"].ChoiceID())
	}
	if _, ok := responses["b"].Float(); ok {
		t.Fatalf("choice id should not parse as a number")
	}
	if v, ok := responses["c"].Float(); !ok || v != 4.5 {
		t.Fatalf("numeric text should parse, got %v %v", v, ok)
	}
	if responses["a"].ChoiceID() != "7" {
		t.Fatalf("numeric choice id should format without decimals, got %q", responses["a"].ChoiceID())
	}
	if responses["d"].Numeric || responses["d"].Text != "" {
		t.Fatalf("null should decode to an empty answer, got %+v", responses["d"])
	}
}

func TestDateHelpers(t *testing.T) {
	late := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)
	if got := DateKey(late); got != "2026-03-02" {
		t.Fatalf("unexpected key %s", got)
	}
	if DaysBetween(late, late.AddDate(0, 0, 10)) != 10 {
		t.Fatalf("expected 10 days")
	}
	dates := DateRange(late, late.AddDate(0, 0, 2))
	if len(dates) != 3 || !dates[0].Equal(DateOf(late)) {
		t.Fatalf("unexpected range %v", dates)
	}
	if DateRange(late, late.AddDate(0, 0, -1)) != nil {
		t.Fatalf("reversed range should be empty")
	}
	if _, err := ParseDate("2026/03/02"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected invalid date, got %v", err)
	}
}

func TestSameValueIgnoresInitialFlag(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a := DailyScoreRecord{Date: day, Score: 50, TotalTasks: 4}
	b := a
	b.Initial = true
	if !a.SameValue(b) {
		t.Fatalf("initial flag is not part of the stored value")
	}
	b.Score = 51
	if a.SameValue(b) {
		t.Fatalf("different scores must not match")
	}
}

func TestAnswerRejectsNonFiniteText(t *testing.T) {
	for _, raw := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity"} {
		if v, ok := TextAnswer(raw).Float(); ok {
			t.Fatalf("%q parsed as %v", raw, v)
		}
	}
}
