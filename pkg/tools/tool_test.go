package tools

import (
	"reflect"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&WriteTool{})
	r.Register(&EditTool{})
	r.Register(&DeleteTool{})

	if _, found := r.Get("Write"); !found {
		t.Error("Write not found")
	}
	if _, found := r.Get("Bash"); found {
		t.Error("Bash should not be registered")
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"Delete", "Edit", "Write"}) {
		t.Errorf("names = %v", got)
	}
}

func TestRegistryRestrict(t *testing.T) {
	r := NewRegistry()
	r.Register(&WriteTool{})
	r.Register(&EditTool{})
	r.Register(&ReadTool{})

	sub := r.Restrict([]string{"Read", "Nope"})
	if got := sub.Names(); !reflect.DeepEqual(got, []string{"Read"}) {
		t.Errorf("restricted names = %v", got)
	}

	without := r.Without("Write")
	if got := without.Names(); !reflect.DeepEqual(got, []string{"Edit", "Read"}) {
		t.Errorf("without names = %v", got)
	}
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewRegistry()
	r.Register(&WriteTool{})
	r.Register(&EditTool{})

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions", len(defs))
	}
	// Sorted by name, with schema attached.
	if defs[0].Name != "Edit" || defs[1].Name != "Write" {
		t.Errorf("order: %s, %s", defs[0].Name, defs[1].Name)
	}
	if defs[0].Description == "" || defs[0].InputSchema == nil {
		t.Error("definition missing description or schema")
	}
}
