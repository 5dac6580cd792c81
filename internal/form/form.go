// Package form holds submitted values with labels and required-field checks.
package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Field struct {
	Name     string
	Label    string
	Value    any
	Required bool
	// Message replaces the default "<Label> is required" error.
	Message string
	Error   string
}

func (f *Field) empty() bool {
	switch v := f.Value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

type Form struct {
	fields map[string]*Field
}

type Option func(*Form)

// Required marks name as required. An empty msg keeps the default error.
// A required name missing from the submitted values is added with no value.
func Required(name, msg string) Option {
	return func(f *Form) {
		fd := f.field(name)
		fd.Required = true
		fd.Message = msg
	}
}

// Labels sets display labels. Names without a field are ignored.
func Labels(labels map[string]string) Option {
	return func(f *Form) {
		for name, l := range labels {
			if fd, ok := f.fields[name]; ok {
				fd.Label = l
			}
		}
	}
}

func New(values map[string]any, opts ...Option) *Form {
	f := &Form{fields: make(map[string]*Field, len(values))}
	for k, v := range values {
		f.fields[k] = &Field{Name: k, Value: v}
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Form) field(name string) *Field {
	fd, ok := f.fields[name]
	if !ok {
		fd = &Field{Name: name}
		f.fields[name] = fd
	}
	return fd
}

func (f *Form) IsField(name string) bool {
	_, ok := f.fields[name]
	return ok
}

func (f *Form) Value(name string) any {
	if fd, ok := f.fields[name]; ok {
		return fd.Value
	}
	return nil
}

// String renders a value as text; missing and nil values are "".
func (f *Form) String(name string) string {
	switch v := f.Value(name).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (f *Form) SetValue(name string, v any) { f.field(name).Value = v }

func (f *Form) Values() map[string]any {
	out := make(map[string]any, len(f.fields))
	for k, fd := range f.fields {
		out[k] = fd.Value
	}
	return out
}

// Label falls back to the field name.
func (f *Form) Label(name string) string {
	if fd, ok := f.fields[name]; ok && fd.Label != "" {
		return fd.Label
	}
	return name
}

// Validate checks every required field and reports whether all are set.
// Errors from an earlier call are cleared first.
func (f *Form) Validate() bool {
	ok := true
	for _, fd := range f.fields {
		fd.Error = ""
		if !fd.Required || !fd.empty() {
			continue
		}
		ok = false
		if fd.Message != "" {
			fd.Error = fd.Message
		} else {
			fd.Error = f.Label(fd.Name) + " is required"
		}
	}
	return ok
}

func (f *Form) Error(name string) string {
	if fd, ok := f.fields[name]; ok {
		return fd.Error
	}
	return ""
}

func (f *Form) Errors() map[string]string {
	out := map[string]string{}
	for k, fd := range f.fields {
		if fd.Error != "" {
			out[k] = fd.Error
		}
	}
	return out
}

// Err joins all field errors in name order, or returns nil.
func (f *Form) Err() error {
	errs := f.Errors()
	if len(errs) == 0 {
		return nil
	}
	names := make([]string, 0, len(errs))
	for k := range errs {
		names = append(names, k)
	}
	sort.Strings(names)
	msgs := make([]string, len(names))
	for i, k := range names {
		msgs[i] = errs[k]
	}
	return errors.New(strings.Join(msgs, "; "))
}
