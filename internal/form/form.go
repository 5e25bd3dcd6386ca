// Package form binds submitted editor values to declared fields, cleans them field by
// field and runs the hooks plugins register to turn cleaned values into glossary data.
package form

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// NonFieldErrors is the error key for failures not tied to one field.
const NonFieldErrors = "__all__"

// Hook runs after a field (OnClean) or after all fields (OnFinish) were cleaned.
// Returning a *ValidationError records a user facing error; any other error aborts
// validation.
type Hook func(ctx context.Context, f *Form) error

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}

type Form struct {
	fields     []*Field
	index      map[string]*Field
	initial    map[string]string
	data       url.Values
	bound      bool
	cleaned    map[string]any
	errors     map[string][]string
	fieldHooks map[string][]Hook
	finish     []Hook
}

func New(fields ...*Field) *Form {
	f := &Form{
		index:      map[string]*Field{},
		initial:    map[string]string{},
		cleaned:    map[string]any{},
		errors:     map[string][]string{},
		fieldHooks: map[string][]Hook{},
	}
	f.Add(fields...)
	return f
}

// Add appends fields in declaration order. A field with a name already present
// replaces the earlier declaration in place.
func (f *Form) Add(fields ...*Field) {
	for _, fl := range fields {
		if old, ok := f.index[fl.Name]; ok {
			for i := range f.fields {
				if f.fields[i] == old {
					f.fields[i] = fl
				}
			}
		} else {
			f.fields = append(f.fields, fl)
		}
		f.index[fl.Name] = fl
	}
}

func (f *Form) Field(name string) *Field {
	return f.index[name]
}

func (f *Form) Fields() []*Field {
	return f.fields
}

func (f *Form) SetInitial(name, value string) {
	f.initial[name] = value
}

func (f *Form) Initial(name string) string {
	return f.initial[name]
}

func (f *Form) Bind(data url.Values) {
	f.data = data
	f.bound = true
}

func (f *Form) IsBound() bool {
	return f.bound
}

// Value is what an editor sees in the field: the submitted value on a bound form,
// the initial value otherwise.
func (f *Form) Value(name string) string {
	if f.bound {
		return f.data.Get(name)
	}
	return f.initial[name]
}

func (f *Form) OnClean(name string, h Hook) {
	f.fieldHooks[name] = append(f.fieldHooks[name], h)
}

func (f *Form) OnFinish(h Hook) {
	f.finish = append(f.finish, h)
}

// Validate cleans every field in declaration order, running each field's hooks right
// after it, then runs the finish hooks when no field failed.
func (f *Form) Validate(ctx context.Context) (bool, error) {
	f.cleaned = map[string]any{}
	f.errors = map[string][]string{}
	if !f.bound {
		return false, nil
	}
	for _, fl := range f.fields {
		v, err := fl.clean(f.data.Get(fl.Name))
		if err != nil {
			if !f.record(fl.Name, err) {
				return false, err
			}
			continue
		}
		f.cleaned[fl.Name] = v
		for _, h := range f.fieldHooks[fl.Name] {
			if err := h(ctx, f); err != nil {
				if !f.record(fl.Name, err) {
					return false, err
				}
				delete(f.cleaned, fl.Name)
				break
			}
		}
	}
	if len(f.errors) > 0 {
		return false, nil
	}
	for _, h := range f.finish {
		if err := h(ctx, f); err != nil {
			if !f.record(NonFieldErrors, err) {
				return false, err
			}
		}
	}
	return len(f.errors) == 0, nil
}

func (f *Form) record(name string, err error) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	f.AddError(name, ve.Message)
	return true
}

func (f *Form) Cleaned(name string) (any, bool) {
	v, ok := f.cleaned[name]
	return v, ok
}

// CleanedString returns the cleaned value of name when it is a string.
func (f *Form) CleanedString(name string) string {
	s, _ := f.cleaned[name].(string)
	return s
}

func (f *Form) SetCleaned(name string, v any) {
	f.cleaned[name] = v
}

func (f *Form) AddError(name, msg string) {
	f.errors[name] = append(f.errors[name], msg)
}

func (f *Form) Errors() map[string][]string {
	return f.errors
}

func (f *Form) FieldErrors(name string) []string {
	return f.errors[name]
}

// Valid reports whether the last Validate call recorded no errors.
func (f *Form) Valid() bool {
	return f.bound && len(f.errors) == 0
}

// ErrorText joins the errors of a field for single line display.
func (f *Form) ErrorText(name string) string {
	return strings.Join(f.errors[name], " ")
}
