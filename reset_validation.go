package auth

import (
	"errors"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeResetInvalidEmail    = "RESET_INVALID_EMAIL"
	TextCodeResetInvalidCode     = "RESET_INVALID_CODE"
	TextCodeResetInvalidPassword = "RESET_INVALID_PASSWORD"
)

const (
	// MinResetCodeLength is the shortest verification code accepted
	MinResetCodeLength = 4
	// MaxResetCodeLength is the longest verification code accepted
	MaxResetCodeLength = 8
	// MinPasswordLength is the shortest new password accepted
	MinPasswordLength = 8
	// MaxPasswordLength is the longest new password accepted
	MaxPasswordLength = 100
)

// IsResetValidationError reports whether err came from reset input validation
func IsResetValidationError(err error) bool {
	return hasTextCode(err, TextCodeResetInvalidEmail) ||
		hasTextCode(err, TextCodeResetInvalidCode) ||
		hasTextCode(err, TextCodeResetInvalidPassword)
}

func validateResetEmail(email string) error {
	err := validation.Validate(email,
		validation.Required,
		validation.Length(3, 254),
		is.Email,
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email address").
			WithTextCode(TextCodeResetInvalidEmail).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

// parseResetCode checks the code format and converts it to its numeric form.
// The backend performs the actual verification on the final submit.
func parseResetCode(code string) (int, error) {
	err := validation.Validate(code,
		validation.Required,
		validation.Length(MinResetCodeLength, MaxResetCodeLength),
		is.Digit,
	)
	if err != nil {
		return 0, invalidResetCode(err)
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, invalidResetCode(err)
	}
	return n, nil
}

func invalidResetCode(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification code").
		WithTextCode(TextCodeResetInvalidCode).
		WithCode(goerrors.CodeBadRequest)
}

func validateNewPassword(password, confirmation string) error {
	err := validation.Validate(password,
		validation.Required,
		validation.Length(MinPasswordLength, MaxPasswordLength),
		validation.By(func(value interface{}) error {
			if s, _ := value.(string); strings.TrimSpace(s) == "" {
				return errors.New("cannot be blank")
			}
			return nil
		}),
	)
	if err == nil && confirmation != "" && confirmation != password {
		err = errors.New("passwords do not match")
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password").
			WithTextCode(TextCodeResetInvalidPassword).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
