package exam

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/eduquest/internal/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("subject", func(fl validator.FieldLevel) bool {
			return model.Subject(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
			return model.Difficulty(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("test_type", func(fl validator.FieldLevel) bool {
			return model.TestType(fl.Field().String()).Valid()
		})
		v.RegisterStructValidation(questionStructLevel, model.Question{})
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// questionStructLevel enforces correctAnswer < len(options).
func questionStructLevel(sl validator.StructLevel) {
	q := sl.Current().Interface().(model.Question)
	if q.CorrectAnswerIndex >= len(q.Options) {
		sl.ReportError(q.CorrectAnswerIndex, "correctAnswer", "CorrectAnswerIndex", "option_index", "")
	}
}

// ValidateQuestion checks a bank question against the data model rules.
func ValidateQuestion(q model.Question) error {
	return toValidationErrors(validatorInstance().Struct(q))
}

func toValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Message: errorMessage(fe),
			Value:   fe.Value(),
		})
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "subject":
		return "must be one of Biology, Physics, Chemistry, Mathematics, English, General"
	case "difficulty":
		return "must be Easy, Medium, or Hard"
	case "test_type":
		return "must be NEET, SCHOOL, or BOARDS"
	case "option_index":
		return "must index one of the options"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", fe.Tag())
	}
}
