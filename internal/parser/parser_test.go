package parser

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPythonInheritanceAndSelfCallsDropped(t *testing.T) {
	src := []byte(`class Animal:
    def speak(self):
        pass

class Dog(Animal):
    def speak(self):
        self.bark()

    def bark(self):
        pass
`)

	reg := NewRegistry()
	parsed, err := reg.Parse(src, "animals.py", "python")
	require.NoError(t, err)

	names := symbolNames(parsed.Symbols)
	require.Contains(t, names, "Animal")
	require.Contains(t, names, "Dog")
	require.Contains(t, names, "bark")

	var inherits *Relationship
	for i := range parsed.Relationships {
		if parsed.Relationships[i].Type == RelInherits {
			inherits = &parsed.Relationships[i]
		}
	}
	require.NotNil(t, inherits)
	require.Equal(t, "Dog", inherits.SourceSymbol)
	require.Equal(t, "Animal", inherits.TargetSymbol)

	for _, rel := range parsed.Relationships {
		if rel.Type == RelCall {
			require.NotContains(t, rel.SourceSymbol+"->"+rel.TargetSymbol, "self.")
		}
	}
}

func TestPythonImportAliasResolution(t *testing.T) {
	src := []byte(`from numpy import array as A

def g():
    return A([1])
`)

	reg := NewRegistry()
	parsed, err := reg.Parse(src, "mod.py", "python")
	require.NoError(t, err)

	var imp *Relationship
	for i := range parsed.Relationships {
		if parsed.Relationships[i].Type == RelImports {
			imp = &parsed.Relationships[i]
		}
	}
	require.NotNil(t, imp)
	require.Equal(t, ModuleScope, imp.SourceSymbol)
	require.Equal(t, "numpy.array", imp.TargetSymbol)

	var call *Relationship
	for i := range parsed.Relationships {
		if parsed.Relationships[i].Type == RelCall {
			call = &parsed.Relationships[i]
		}
	}
	require.NotNil(t, call)
	require.Equal(t, "numpy.array", call.TargetSymbol)
	require.Equal(t, "g", call.SourceSymbol)
}

func TestJavaScriptNamedImportAlias(t *testing.T) {
	src := []byte(`import { readFile as rf } from "fs";

function load() {
  return rf("a.txt");
}
`)

	reg := NewRegistry()
	parsed, err := reg.Parse(src, "mod.js", "javascript")
	require.NoError(t, err)

	var call *Relationship
	for i := range parsed.Relationships {
		if parsed.Relationships[i].Type == RelCall {
			call = &parsed.Relationships[i]
		}
	}
	require.NotNil(t, call)
	require.Equal(t, "fs.readFile", call.TargetSymbol)
}

func TestStructuredFallbackAppliesToUnknownLanguage(t *testing.T) {
	src := []byte("func DoThing() {}\nimport \"fmt\"\n")

	reg := NewRegistry()
	parsed, err := reg.Parse(src, "main.go", "go")
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Symbols)
	require.Equal(t, "DoThing", parsed.Symbols[0].Name)
}

func TestPatternStrategyAugmentsRelationships(t *testing.T) {
	rule := PatternRule{Match: regexp.MustCompile(`uses_service\("([a-zA-Z0-9_]+)"\)`), Type: RelCall}
	ps, err := NewPatternStrategy("go", []PatternRule{rule})
	require.NoError(t, err)

	reg := NewRegistry().WithPattern(ps)
	src := []byte("func main() {\n  uses_service(\"billing\")\n}\n")
	parsed, err := reg.Parse(src, "main.go", "go")
	require.NoError(t, err)

	found := false
	for _, rel := range parsed.Relationships {
		if rel.Type == RelCall && rel.TargetSymbol == "billing" {
			found = true
		}
	}
	require.True(t, found)
}

func symbolNames(symbols []Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = s.Name
	}
	return out
}
