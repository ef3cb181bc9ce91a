package registry

import (
	"testing"

	"github.com/signalfx/maestro-go/internal/model"
)

func TestLookupByExactName(t *testing.T) {
	env := &model.Environment{
		Registries: map[string]*model.Registry{
			"registry.example.com:5000": {Name: "registry.example.com:5000", Username: "u", Password: "p"},
		},
	}
	r := Lookup(env, "registry.example.com:5000/myapp:1.0")
	if r == nil {
		t.Fatal("expected a registry match")
	}
}

func TestLookupByURLHost(t *testing.T) {
	env := &model.Environment{
		Registries: map[string]*model.Registry{
			"internal": {Name: "internal", URL: "https://registry.example.com:5000", Username: "u", Password: "p"},
		},
	}
	r := Lookup(env, "registry.example.com:5000/myapp:1.0")
	if r == nil {
		t.Fatal("expected a registry match via URL host")
	}
}

func TestLookupUnqualifiedImageReturnsNil(t *testing.T) {
	env := &model.Environment{Registries: map[string]*model.Registry{
		"internal": {Name: "internal", URL: "https://registry.example.com", Username: "u", Password: "p"},
	}}
	if r := Lookup(env, "redis:6"); r != nil {
		t.Errorf("expected nil for unqualified image, got %+v", r)
	}
}

func TestLookupNoMatch(t *testing.T) {
	env := &model.Environment{Registries: map[string]*model.Registry{
		"internal": {Name: "internal", URL: "https://other.example.com", Username: "u", Password: "p"},
	}}
	if r := Lookup(env, "registry.example.com/myapp"); r != nil {
		t.Errorf("expected nil, got %+v", r)
	}
}
