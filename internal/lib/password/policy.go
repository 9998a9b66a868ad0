package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MinLength минимальная длина пароля.
const MinLength = 8

const specialChars = `!@#$%^&*(),.?":{}|<>`

// ErrWeakPassword возвращается, если пароль не проходит политику.
var ErrWeakPassword = errors.New("password does not meet policy")

// Validate проверяет длину пароля и наличие заглавной и строчной буквы,
// цифры и спецсимвола. В ошибке перечислены все нарушения.
func Validate(password string) error {
	var problems []string
	if len([]rune(password)) < MinLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", MinLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	if !upper {
		problems = append(problems, "an uppercase letter")
	}
	if !lower {
		problems = append(problems, "a lowercase letter")
	}
	if !digit {
		problems = append(problems, "a digit")
	}
	if !special {
		problems = append(problems, "a special character")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: requires %s", ErrWeakPassword, strings.Join(problems, ", "))
	}
	return nil
}
