package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	Rating         QuestionType = "rating"
	Text           QuestionType = "text"
	Date           QuestionType = "date"
	Number         QuestionType = "number"
)

var questionTypeAliases = map[string]QuestionType{
	"single_choice":   SingleChoice,
	"single":          SingleChoice,
	"radio":           SingleChoice,
	"dropdown":        SingleChoice,
	"select":          SingleChoice,
	"multiple_choice": MultipleChoice,
	"multiple":        MultipleChoice,
	"multi_select":    MultipleChoice,
	"multiselect":     MultipleChoice,
	"checkbox":        MultipleChoice,
	"checkboxes":      MultipleChoice,
	"rating":          Rating,
	"text":            Text,
	"date":            Date,
	"number":          Number,
}

// ParseQuestionType maps a wire type name, including legacy aliases, to its canonical type.
func ParseQuestionType(name string) (QuestionType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if t, ok := questionTypeAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown question type %q", name)
}

func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultipleChoice
}

func (t QuestionType) Valid() bool {
	_, err := ParseQuestionType(string(t))
	return err == nil
}

// UnmarshalJSON normalises aliases; unknown names are kept verbatim so validation can report them.
func (t *QuestionType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if parsed, err := ParseQuestionType(name); err == nil {
		*t = parsed
	} else {
		*t = QuestionType(name)
	}
	return nil
}
