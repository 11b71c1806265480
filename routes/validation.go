package routes

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mbolis/survey-intake/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("questiontype", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(model.QuestionType)
		return ok && t.Valid()
	})
	v.RegisterStructValidation(validateQuestion, model.Question{})
	v.RegisterStructValidation(validateSurveyWindow, model.Survey{})

	return v
}

func validateQuestion(sl validator.StructLevel) {
	q := sl.Current().Interface().(model.Question)
	if q.Type.IsChoice() && len(q.Options) == 0 {
		sl.ReportError(q.Options, "options", "Options", "choiceoptions", "")
	}
}

func validateSurveyWindow(sl validator.StructLevel) {
	s := sl.Current().Interface().(model.Survey)
	if s.StartsAt != nil && s.EndsAt != nil && s.EndsAt.Before(*s.StartsAt) {
		sl.ReportError(s.EndsAt, "endsAt", "EndsAt", "afterstart", "")
	}
}

// describeValidation flattens validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}

	msgs := make([]string, len(errs))
	for i, e := range errs {
		ns := e.Namespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		msgs[i] = fmt.Sprintf("%s: %s", ns, e.Tag())
	}
	return strings.Join(msgs, "; ")
}
