package ui

import (
	"embed"
	"html/template"
	"net/http"

	"cascade/internal/form"
)

//go:embed templates/*.html
var templateFS embed.FS

type Renderer struct {
	templates map[string]*template.Template
}

func New() (*Renderer, error) {
	pages := map[string]string{
		"plugins": "templates/plugins.html",
		"edit":    "templates/plugin_edit.html",
	}
	r := &Renderer{templates: map[string]*template.Template{}}
	for name, file := range pages {
		tpl, err := template.ParseFS(templateFS, "templates/layout.html", file)
		if err != nil {
			return nil, err
		}
		r.templates[name] = tpl
	}
	return r, nil
}

func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	tpl, ok := r.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return tpl.ExecuteTemplate(w, "layout", data)
}

type OptionView struct {
	Value    string
	Label    string
	Selected bool
}

type FieldView struct {
	Name      string
	Label     string
	HelpText  string
	InputType string
	IsChoice  bool
	Required  bool
	Value     string
	Options   []OptionView
	Errors    []string
}

// Fields prepares the fields of f for the edit template.
func Fields(f *form.Form) []FieldView {
	views := make([]FieldView, 0, len(f.Fields()))
	for _, fl := range f.Fields() {
		v := FieldView{
			Name:      fl.Name,
			Label:     fl.Label,
			HelpText:  fl.HelpText,
			InputType: fl.Kind.InputType(),
			IsChoice:  fl.Kind == form.Choice,
			Required:  fl.Required,
			Value:     f.Value(fl.Name),
			Errors:    f.FieldErrors(fl.Name),
		}
		if v.IsChoice {
			if !fl.Required {
				v.Options = append(v.Options, OptionView{Value: "", Label: "---------", Selected: v.Value == ""})
			}
			for _, o := range fl.Options {
				v.Options = append(v.Options, OptionView{Value: o.Value, Label: o.Label, Selected: o.Value == v.Value})
			}
		}
		views = append(views, v)
	}
	return views
}
