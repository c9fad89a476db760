package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// inputValidate checks struct tags on caller-supplied inputs (metrics,
// commit ranges, discovery requests). Entity invariants that depend on more
// than one field live in the Validate methods.
var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New(validator.WithRequiredStructEnabled())
}

// validateStruct runs tag validation and folds the result into ErrInvalidInput.
func validateStruct(v interface{}) error {
	err := inputValidate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

// ValidateStruct runs tag validation on request types defined outside this
// package (discovery requests, CLI inputs).
func ValidateStruct(v interface{}) error {
	return validateStruct(v)
}
