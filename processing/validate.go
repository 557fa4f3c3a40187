package processing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("title_style", func(fl validator.FieldLevel) bool {
		return IsTitleStyle(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// cleanJSON strips markdown fences some models wrap JSON in.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// decodeResponse parses raw into T and checks its validate tags. Unparseable
// text is ErrMalformedResponse; wrong JSON types and broken constraints are
// ErrSchemaValidation.
func decodeResponse[T any](stage, raw string) (*T, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return nil, newGenerationError(ErrMalformedResponse, stage, "empty response", raw)
	}

	var out T
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, newGenerationError(ErrSchemaValidation, stage, describeTypeError(typeErr), raw)
		}
		return nil, newGenerationError(ErrMalformedResponse, stage, err.Error(), raw)
	}

	if err := validate.Struct(&out); err != nil {
		return nil, newGenerationError(ErrSchemaValidation, stage, describeValidation(err), raw)
	}
	return &out, nil
}

func describeTypeError(e *json.UnmarshalTypeError) string {
	field := e.Field
	if field == "" {
		field = "response"
	}
	return fmt.Sprintf("%s: expected %s, got %s", field, e.Type, e.Value)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", ns, rule))
	}
	return strings.Join(msgs, "; ")
}
