package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Submission is the body of POST /responses.
type Submission struct {
	SurveyID RefID             `json:"surveyId"`
	Answers  []SubmittedAnswer `json:"answers"`
}

type SubmittedAnswer struct {
	QuestionID RefID       `json:"questionId"`
	Value      AnswerValue `json:"value"`
}

// RefID is an identifier sent either as a JSON number or as a string.
// Anything that is not a positive integer is kept raw and reported as invalid by Int.
type RefID struct {
	raw string
}

func NewRefID(id int) RefID {
	return RefID{raw: strconv.Itoa(id)}
}

func (r *RefID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		r.raw = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.raw = strings.TrimSpace(s)
		return nil
	}
	r.raw = string(data)
	return nil
}

func (r RefID) MarshalJSON() ([]byte, error) {
	if id, ok := r.Int(); ok {
		return []byte(strconv.Itoa(id)), nil
	}
	return json.Marshal(r.raw)
}

// Int returns the id as a positive integer. Integral decimals such as 3.0 or "3e0"
// are accepted; fractions, zero and negatives are not.
func (r RefID) Int() (int, bool) {
	if id, err := strconv.Atoi(r.raw); err == nil {
		if id <= 0 {
			return 0, false
		}
		return id, true
	}
	f, err := strconv.ParseFloat(r.raw, 64)
	if err != nil || f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func (r RefID) String() string {
	return r.raw
}

type ValueKind int

const (
	TextValue ValueKind = iota
	NumericValue
	ChoiceListValue
)

// AnswerValue is the decoded form of an answer's "value": free text, a number, or a
// list of choice tokens. Null or missing values decode to empty text.
type AnswerValue struct {
	Kind   ValueKind
	Text   string
	Number json.Number
	Tokens []string
}

func TextAnswer(s string) AnswerValue {
	return AnswerValue{Kind: TextValue, Text: s}
}

func ChoiceAnswer(tokens ...string) AnswerValue {
	return AnswerValue{Kind: ChoiceListValue, Tokens: tokens}
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	*v = AnswerValue{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &v.Text)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		v.Kind = ChoiceListValue
		for _, item := range items {
			var elem AnswerValue
			if err := elem.UnmarshalJSON(item); err != nil {
				return err
			}
			v.Tokens = append(v.Tokens, elem.String())
		}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		v.Text = strconv.FormatBool(b)
		return nil
	case '{':
		// objects have no meaning as answers; keep them verbatim as text
		v.Text = string(data)
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&v.Number); err != nil {
			return err
		}
		v.Kind = NumericValue
		return nil
	}
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// String is the canonical stored form of the value.
func (v AnswerValue) String() string {
	switch v.Kind {
	case NumericValue:
		return v.Number.String()
	case ChoiceListValue:
		return strings.Join(v.Tokens, ",")
	default:
		return v.Text
	}
}

// ChoiceTokens splits the value into trimmed, non-empty choice tokens.
func (v AnswerValue) ChoiceTokens() []string {
	var parts []string
	switch v.Kind {
	case ChoiceListValue:
		for _, t := range v.Tokens {
			parts = append(parts, strings.Split(t, ",")...)
		}
	default:
		parts = strings.Split(v.String(), ",")
	}

	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

func (v AnswerValue) IsEmpty() bool {
	return strings.TrimSpace(v.String()) == ""
}
