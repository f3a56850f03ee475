package definition

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MaxNameLength is the longest accepted agent name.
const MaxNameLength = 63

// ReservedName cannot be used as an agent name.
const ReservedName = "user"

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Name validation errors.
var (
	ErrNameRequired = errors.New("agent name is required")
	ErrNameSpaces   = errors.New("agent name cannot contain spaces")
	ErrNameInvalid  = errors.New("agent name must start with a letter or underscore, and can only contain letters, digits, or underscores")
	ErrNameReserved = errors.New(`agent name cannot be "user" as it's a reserved name`)
	ErrNameTooLong  = errors.New("agent name is too long (max 63 characters)")
)

// IsIdentifier reports whether s matches ^[a-zA-Z_][a-zA-Z0-9_]*$.
func IsIdentifier(s string) bool { return identRe.MatchString(s) }

// ValidateName checks a user-provided agent name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return ErrNameRequired
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return ErrNameSpaces
	case !IsIdentifier(name):
		return ErrNameInvalid
	case strings.EqualFold(name, ReservedName):
		return ErrNameReserved
	case len(name) > MaxNameLength:
		return ErrNameTooLong
	}

	return nil
}

// ValidateTree checks the names of doc and every nested child definition and
// returns all failures, each prefixed with the definition's position.
func ValidateTree(doc map[string]any) []error {
	var errs []error

	var walk func(path string, d map[string]any)
	walk = func(path string, d map[string]any) {
		name, _ := d["name"].(string)
		if err := ValidateName(name); err != nil {
			errs = append(errs, &ValidationError{Path: path, Name: name, Err: err})
		}
		if _, err := Decode(d); err != nil {
			errs = append(errs, &ValidationError{Path: path, Name: name, Err: err})
		}
		children, _ := d["childAgents"].([]any)
		for i, c := range children {
			if m, ok := c.(map[string]any); ok {
				walk(path+".childAgents["+strconv.Itoa(i)+"]", m)
			}
		}
	}

	walk("$", doc)

	return errs
}

// ValidationError locates a validation failure inside a definition tree.
type ValidationError struct {
	Path string
	Name string
	Err  error
}

func (e *ValidationError) Error() string { return e.Path + " (" + e.Name + "): " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }
