package library

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/samber/lo"

	"github.com/thebtf/promptlib/pkg/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("category_icon", func(fl validator.FieldLevel) bool {
		return lo.Contains(models.CategoryIcons, fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// validateStruct runs struct validation and converts failures to *ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// checkCustomModel applies the custom model naming rules against prompts.
// An exact built-in name is always accepted. A custom name may not match a
// built-in name ignoring case, nor a custom name already in use, unless it is
// the current model of the prompt being edited.
func checkCustomModel(prompts []*models.Prompt, value, editingID string) error {
	value = strings.TrimSpace(value)
	if value == "" || lo.Contains(models.KnownAIModels, value) {
		return nil
	}
	if models.IsKnownAIModel(value) {
		return fmt.Errorf("%w: %q matches a built-in model", ErrDuplicateModel, value)
	}

	lower := strings.ToLower(value)
	if editingID != "" {
		if p, ok := lo.Find(prompts, func(p *models.Prompt) bool { return p.ID == editingID }); ok {
			if strings.ToLower(p.AIModel) == lower {
				return nil
			}
		}
	}
	inUse := lo.ContainsBy(prompts, func(p *models.Prompt) bool {
		return p.HasCustomModel() && strings.ToLower(p.AIModel) == lower
	})
	if inUse {
		return fmt.Errorf("%w: %q is already used", ErrDuplicateModel, value)
	}
	return nil
}
