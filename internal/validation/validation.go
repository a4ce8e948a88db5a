// Package validation はリクエスト本文の入力値検証を提供する。
// go-playground/validator のタグで制約を宣言し、
// 違反内容はJSONのフィールド名で報告する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fiturae/fiturae/internal/model"
)

// Validator は構造体の検証を行う。ゴルーチン間で共有してよい。
type Validator struct {
	v *validator.Validate
}

// New はカスタムルール（weekday）を登録したValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// RegisterValidationは組み込みタグ名と衝突した場合のみエラーを返す。
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		day, ok := fl.Field().Interface().(model.WeekDay)
		if !ok {
			return model.WeekDay(fl.Field().String()).Valid()
		}
		return day.Valid()
	})
	return &Validator{v: v}
}

// Struct はsを検証し、違反があれば *model.APIError（VALIDATION_ERROR）を返す。
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(err.Error())
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, describe(fe))
	}
	return model.NewValidationError(strings.Join(reasons, "; "))
}

// describe は1件の違反を人が読める文にする。
func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or greater", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be %s or less", field, fe.Param())
	case "weekday":
		return fmt.Sprintf("%s must be one of MONDAY..SUNDAY", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	}
	return fmt.Sprintf("%s failed on %s", field, fe.Tag())
}

// fieldPath は "WorkoutDetails.plan[0].name" から先頭の型名を除いた "plan[0].name" を返す。
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
