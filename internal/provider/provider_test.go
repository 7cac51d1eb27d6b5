package provider

import (
	"context"
	"testing"
)

type fakeProvider struct {
	name string
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) DisplayName() string { return f.name }
func (f *fakeProvider) Validate() error     { return nil }
func (f *fakeProvider) Close() error        { return nil }
func (f *fakeProvider) ListItems(ctx context.Context, boardRef string) ([]Item, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeProvider{name: "trello"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&fakeProvider{name: "kanbanflow"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.Register(&fakeProvider{name: "trello"}); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register(&fakeProvider{name: ""}); err == nil {
		t.Error("empty name should fail")
	}

	p, err := r.Get("trello")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Name() != "trello" {
		t.Errorf("Get returned %q", p.Name())
	}
	if _, err := r.Get("jira"); err == nil {
		t.Error("unknown provider should fail")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "kanbanflow" || names[1] != "trello" {
		t.Errorf("Names = %v", names)
	}
}
