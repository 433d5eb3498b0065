package tools

import (
	"reflect"
	"testing"
)

func TestDefaultRegistryNames(t *testing.T) {
	reg := DefaultRegistry()
	want := []string{"display_file_contents", "list_directory", "list_processes", "print_working_directory"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected names: %v", got)
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()
	if _, ok := reg.Get("list_directory"); !ok {
		t.Fatalf("expected list_directory to be registered")
	}
	if _, ok := reg.Get("delete_all_files"); ok {
		t.Fatalf("expected unknown tool to be absent")
	}
}

func TestOpenAIToolsMatchesRegistry(t *testing.T) {
	reg := DefaultRegistry()
	defs := reg.OpenAITools()
	if len(defs) != len(reg.Names()) {
		t.Fatalf("advertised catalog size %d != registry size %d", len(defs), len(reg.Names()))
	}
	for i, name := range reg.Names() {
		fn := defs[i].OfFunction
		if fn == nil {
			t.Fatalf("expected function tool at %d", i)
		}
		if fn.Function.Name != name {
			t.Fatalf("catalog order mismatch: want %s got %s", name, fn.Function.Name)
		}
		tool, _ := reg.Get(name)
		if !reflect.DeepEqual(map[string]any(fn.Function.Parameters), tool.Schema()) {
			t.Fatalf("advertised schema for %s differs from enforcement schema", name)
		}
	}
}
