// fields.go — разбор значений полей формы заявки.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// FieldInput — одно значение поля формы.
type FieldInput struct {
	Label string  `json:"label" validate:"required"`
	Value *string `json:"value" validate:"required"`
}

type rawFieldInput struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}

var fieldValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseFields разбирает fieldsJson: массив {label, value}, одиночный объект
// или любой из них в одинарных или двойных кавычках.
// Пустая строка — пустой набор.
func ParseFields(fieldsJSON string) ([]FieldInput, error) {
	s := unquoteFields(strings.TrimSpace(fieldsJSON))
	if s == "" {
		return nil, nil
	}

	var raw []rawFieldInput
	switch s[0] {
	case '[':
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, fmt.Errorf("%w: fieldsJson не разобран: %v", ErrValidation, err)
		}
	case '{':
		var one rawFieldInput
		if err := json.Unmarshal([]byte(s), &one); err != nil {
			return nil, fmt.Errorf("%w: fieldsJson не разобран: %v", ErrValidation, err)
		}
		raw = []rawFieldInput{one}
	default:
		return nil, fmt.Errorf("%w: fieldsJson должен быть массивом или объектом", ErrValidation)
	}

	out := make([]FieldInput, 0, len(raw))
	for i, r := range raw {
		in := FieldInput{Label: strings.TrimSpace(r.Label), Value: rawValue(r.Value)}
		if err := fieldValidator.Struct(in); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return nil, fmt.Errorf("%w: поле #%d: %s обязательно", ErrValidation, i+1, strings.ToLower(verrs[0].Field()))
			}
			return nil, fmt.Errorf("%w: поле #%d: %v", ErrValidation, i+1, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// unquoteFields снимает внешние кавычки. Строка в двойных кавычках
// сначала разбирается как JSON-строка (экранированный JSON).
func unquoteFields(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first != last || (first != '"' && first != '\'') {
		return s
	}
	if first == '"' {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return strings.TrimSpace(inner)
		}
	}
	return strings.TrimSpace(s[1 : len(s)-1])
}

// rawValue приводит значение к строке; null и отсутствие значения дают nil.
func rawValue(v json.RawMessage) *string {
	t := strings.TrimSpace(string(v))
	if t == "" || t == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return &s
	}
	return &t
}

// BindFields связывает значения с обязательными полями типа документа по имени.
func BindFields(submissionID string, inputs []FieldInput, required []model.RequiredField) []model.FieldValue {
	byName := make(map[string]int64, len(required))
	for _, f := range required {
		byName[f.FieldName] = f.ID
	}

	values := make([]model.FieldValue, 0, len(inputs))
	for _, in := range inputs {
		fv := model.FieldValue{
			SubmissionID: submissionID,
			FieldName:    in.Label,
			FieldValue:   *in.Value,
		}
		if id, ok := byName[in.Label]; ok {
			fv.RequiredFieldID = &id
		}
		values = append(values, fv)
	}
	return values
}
