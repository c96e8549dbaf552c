package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/bigkaa/docreview/internal/domain/model"
)

func TestParseFields(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string // label=value
		wantErr bool
	}{
		{name: "пусто", input: "  ", want: nil},
		{name: "массив", input: `[{"label":"이름","value":"홍길동"},{"label":"학번","value":"2024"}]`, want: []string{"이름=홍길동", "학번=2024"}},
		{name: "объект", input: `{"label":"이름","value":"홍길동"}`, want: []string{"이름=홍길동"}},
		{name: "одинарные кавычки", input: `'[{"label":"a","value":"b"}]'`, want: []string{"a=b"}},
		{name: "экранированная строка", input: `"[{\"label\":\"a\",\"value\":\"b\"}]"`, want: []string{"a=b"}},
		{name: "числовое значение", input: `[{"label":"n","value":42}]`, want: []string{"n=42"}},
		{name: "пустое значение допустимо", input: `[{"label":"a","value":""}]`, want: []string{"a="}},
		{name: "label с пробелами", input: `[{"label":"  a ","value":"b"}]`, want: []string{"a=b"}},
		{name: "нет label", input: `[{"value":"b"}]`, wantErr: true},
		{name: "value null", input: `[{"label":"a","value":null}]`, wantErr: true},
		{name: "нет value", input: `[{"label":"a"}]`, wantErr: true},
		{name: "не JSON", input: `label=a`, wantErr: true},
		{name: "битый массив", input: `[{"label":"a"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFields(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Ошибка = %v, ожидалась ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Неожиданная ошибка: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Полей: %d, ожидалось %d", len(got), len(tt.want))
			}
			for i, in := range got {
				if pair := in.Label + "=" + *in.Value; pair != tt.want[i] {
					t.Errorf("Поле %d = %q, ожидалось %q", i, pair, tt.want[i])
				}
			}
		})
	}
}

func TestParseFields_ErrorMessage(t *testing.T) {
	_, err := ParseFields(`[{"label":"a","value":"b"},{"label":"","value":"c"}]`)
	if err == nil {
		t.Fatal("Ожидалась ошибка")
	}
	if want := "поле #2: label обязательно"; !strings.Contains(err.Error(), want) {
		t.Errorf("Сообщение = %q, ожидалось содержащее %q", err.Error(), want)
	}
}

func TestBindFields(t *testing.T) {
	v1, v2 := "홍길동", "x"
	inputs := []FieldInput{
		{Label: "이름", Value: &v1},
		{Label: "기타", Value: &v2},
	}
	required := []model.RequiredField{{ID: 71, FieldName: "이름"}}

	got := BindFields("sub-1", inputs, required)
	if len(got) != 2 {
		t.Fatalf("Значений: %d, ожидалось 2", len(got))
	}
	if got[0].RequiredFieldID == nil || *got[0].RequiredFieldID != 71 {
		t.Errorf("Поле %q не связано с обязательным полем 71", got[0].FieldName)
	}
	if got[1].RequiredFieldID != nil {
		t.Errorf("Поле %q не должно быть связано", got[1].FieldName)
	}
	for _, fv := range got {
		if fv.SubmissionID != "sub-1" {
			t.Errorf("SubmissionID = %s", fv.SubmissionID)
		}
	}
}
