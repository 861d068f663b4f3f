package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Answer is a questionnaire answer: either a number or a choice id / free text.
type Answer struct {
	Number  float64
	Text    string
	Numeric bool
}

func NumberAnswer(v float64) Answer { return Answer{Number: v, Numeric: true} }

func TextAnswer(s string) Answer { return Answer{Text: s} }

// Float returns the numeric value, parsing text answers when possible.
// NaN and infinities are not numbers a respondent can give.
func (a Answer) Float() (float64, bool) {
	v := a.Number
	if !a.Numeric {
		parsed, err := strconv.ParseFloat(a.Text, 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ChoiceID returns the answer as an option id.
func (a Answer) ChoiceID() string {
	if a.Numeric {
		return strconv.FormatFloat(a.Number, 'f', -1, 64)
	}
	return a.Text
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Numeric {
		return json.Marshal(a.Number)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = NumberAnswer(v)
	return nil
}
