package form

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Kind int

const (
	Text Kind = iota
	Choice
	URL
	Email
)

// InputType is the HTML input type used to render the kind.
func (k Kind) InputType() string {
	switch k {
	case URL:
		return "url"
	case Email:
		return "email"
	default:
		return "text"
	}
}

type Option struct {
	Value string
	Label string
}

type Field struct {
	Name     string
	Label    string
	HelpText string
	Kind     Kind
	Required bool
	Options  []Option
	// Parse replaces the kind's conversion of the trimmed submitted value,
	// including the required check.
	Parse func(raw string) (any, error)
}

var validate = validator.New()

var urlSchemes = map[string]struct{}{"http": {}, "https": {}, "ftp": {}, "ftps": {}}

func (fl *Field) HasOption(value string) bool {
	for _, o := range fl.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

func (fl *Field) clean(raw string) (any, error) {
	value := strings.TrimSpace(raw)
	if fl.Parse != nil {
		return fl.Parse(value)
	}
	if value == "" {
		if fl.Required {
			return nil, Invalid("This field is required.")
		}
		return "", nil
	}
	switch fl.Kind {
	case Choice:
		if !fl.HasOption(value) {
			return nil, Invalid(fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", value))
		}
	case URL:
		return cleanURL(value)
	case Email:
		if err := validate.Var(value, "email"); err != nil {
			return nil, Invalid("Enter a valid email address.")
		}
	}
	return value, nil
}

// cleanURL defaults a missing scheme to http and accepts absolute web URLs only.
func cleanURL(value string) (string, error) {
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}
	if err := validate.Var(value, "url"); err != nil {
		return "", Invalid("Enter a valid URL.")
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return "", Invalid("Enter a valid URL.")
	}
	if _, ok := urlSchemes[strings.ToLower(u.Scheme)]; !ok {
		return "", Invalid("Enter a valid URL.")
	}
	return value, nil
}
