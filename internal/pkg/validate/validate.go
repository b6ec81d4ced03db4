package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

// shopEmailRe is the address shape accounts have always been registered
// with: no whitespace, one @, a dot somewhere in the domain.
var shopEmailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func init() {
	if err := v.RegisterValidation("shopemail", func(fl validator.FieldLevel) bool {
		return shopEmailRe.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s any) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Email reports whether s is a syntactically valid address.
func Email(s string) bool {
	return v.Var(s, "required,shopemail") == nil
}
