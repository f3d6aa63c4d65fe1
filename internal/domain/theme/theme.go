// Package theme lists the deck designs the web form can offer.
package theme

import "strings"

// DefaultKey is used when a submission does not name a theme.
const DefaultKey = "chisel"

type Theme struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

var builtin = []Theme{
	{Key: "chisel", Name: "Chisel"},
	{Key: "minimal", Name: "Minimal"},
	{Key: "corporate", Name: "Corporate"},
	{Key: "aurora", Name: "Aurora"},
	{Key: "ocean", Name: "Ocean"},
	{Key: "sunset", Name: "Sunset"},
	{Key: "forest", Name: "Forest"},
	{Key: "midnight", Name: "Midnight"},
}

// Registry is an immutable, ordered set of themes.
type Registry struct {
	order []Theme
	byKey map[string]Theme
}

// NewRegistry builds a registry from themes; with no arguments the built-in set is used.
func NewRegistry(themes ...Theme) *Registry {
	if len(themes) == 0 {
		themes = builtin
	}
	r := &Registry{byKey: make(map[string]Theme, len(themes))}
	for _, t := range themes {
		key := strings.ToLower(strings.TrimSpace(t.Key))
		if key == "" {
			continue
		}
		if _, dup := r.byKey[key]; dup {
			continue
		}
		t.Key = key
		r.order = append(r.order, t)
		r.byKey[key] = t
	}
	return r
}

func (r *Registry) All() []Theme {
	out := make([]Theme, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Get(key string) (Theme, bool) {
	t, ok := r.byKey[strings.ToLower(strings.TrimSpace(key))]
	return t, ok
}

// Name returns the display name of key, or key itself when unknown.
func (r *Registry) Name(key string) string {
	if t, ok := r.Get(key); ok {
		return t.Name
	}
	return key
}
