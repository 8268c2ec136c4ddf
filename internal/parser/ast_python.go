package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// astPython is the preferred, grammar-driven strategy for Python
// (spec.md §4.3.1): it walks the syntax tree maintaining a lexical scope
// stack plus a per-scope alias map inherited from the parent scope
// (copy-on-write, see scope.go).
type astPython struct{}

func (astPython) Name() string { return "ast" }

func (astPython) Supports(language string) bool { return language == "python" }

func (astPython) Parse(text []byte, path, language string) (*ParsedFile, error) {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())

	tree, err := p.ParseCtx(context.Background(), nil, text)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lastLine := strings.Count(string(text), "\n") + 1
	w := &pythonWalker{
		source: text,
		path:   path,
		scopes: newScopeStack(lastLine),
		result: &ParsedFile{Path: path, Language: language},
	}
	w.walk(tree.RootNode())
	return w.result, nil
}

type pythonWalker struct {
	source []byte
	path   string
	scopes *scopeStack
	result *ParsedFile
}

func (w *pythonWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.source[n.StartByte():n.EndByte()])
}

func (w *pythonWalker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (w *pythonWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	w.scopes.PopTo(w.line(n))

	switch n.Type() {
	case "import_statement":
		w.handleImport(n)
	case "import_from_statement":
		w.handleImportFrom(n)
	case "class_definition":
		w.handleClass(n)
		return // children handled inside handleClass with the pushed scope
	case "function_definition":
		w.handleFunction(n)
		return
	case "call":
		w.handleCall(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *pythonWalker) handleImport(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
			modulePath := w.text(child)
			alias := ""
			if child.Type() == "aliased_import" {
				nameNode := child.ChildByFieldName("name")
				aliasNode := child.ChildByFieldName("alias")
				modulePath = w.text(nameNode)
				alias = w.text(aliasNode)
			}
			w.result.Relationships = append(w.result.Relationships, Relationship{
				SourceSymbol: w.scopes.Current(),
				TargetSymbol: modulePath,
				Type:         RelImports,
				SourceFile:   w.path,
				SourceLine:   w.line(n),
			})
			if alias != "" {
				w.scopes.SetAlias(alias, modulePath)
			}
		}
	}
}

func (w *pythonWalker) handleImportFrom(n *sitter.Node) {
	moduleNode := childOfType(n, "dotted_name")
	module := w.text(moduleNode)
	if module == "" {
		if rel := childOfType(n, "relative_import"); rel != nil {
			module = w.text(rel)
		}
	}

	// from X import A [as B], C [as D], ...: every imported name is its own
	// child after the "import" keyword (a "name" field lookup returns only
	// the first), so scan all children that follow "import".
	seenImport := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "import" {
			seenImport = true
			continue
		}
		if !seenImport {
			continue
		}
		if child.Type() == "dotted_name" || child.Type() == "aliased_import" || child.Type() == "identifier" {
			w.recordFromImport(n, module, child)
		}
	}
}

func (w *pythonWalker) recordFromImport(stmt *sitter.Node, module string, nameNode *sitter.Node) {
	imported := w.text(nameNode)
	alias := ""
	if nameNode.Type() == "aliased_import" {
		imported = w.text(nameNode.ChildByFieldName("name"))
		alias = w.text(nameNode.ChildByFieldName("alias"))
	}
	target := imported
	if module != "" {
		target = module + "." + imported
	}

	w.result.Relationships = append(w.result.Relationships, Relationship{
		SourceSymbol: w.scopes.Current(),
		TargetSymbol: target,
		Type:         RelImports,
		SourceFile:   w.path,
		SourceLine:   w.line(stmt),
	})
	if alias != "" {
		w.scopes.SetAlias(alias, target)
	} else {
		w.scopes.SetAlias(imported, target)
	}
}

func (w *pythonWalker) handleClass(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	className := w.text(nameNode)
	endLine := int(n.EndPoint().Row) + 1

	for _, base := range w.classBases(n) {
		w.result.Relationships = append(w.result.Relationships, Relationship{
			SourceSymbol: qualify(w.scopes.Current(), className),
			TargetSymbol: base,
			Type:         RelInherits,
			SourceFile:   w.path,
			SourceLine:   w.line(n),
		})
	}

	w.result.Symbols = append(w.result.Symbols, Symbol{
		Name:      className,
		Kind:      SymbolClass,
		StartLine: w.line(n),
		EndLine:   endLine,
	})

	w.scopes.Push(className, endLine)
	if body := n.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			w.walk(body.Child(i))
		}
	}
}

func (w *pythonWalker) classBases(n *sitter.Node) []string {
	var bases []string
	args := n.ChildByFieldName("superclasses")
	if args == nil {
		return bases
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		switch child.Type() {
		case "identifier", "attribute":
			bases = append(bases, w.text(child))
		}
	}
	return bases
}

func (w *pythonWalker) handleFunction(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	endLine := int(n.EndPoint().Row) + 1

	kind := SymbolFunction
	parent := w.scopes.Current()
	if parent != ModuleScope {
		kind = SymbolMethod
	}

	w.result.Symbols = append(w.result.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		StartLine: w.line(n),
		EndLine:   endLine,
	})

	w.scopes.Push(name, endLine)
	if body := n.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			w.walk(body.Child(i))
		}
	}
}

func (w *pythonWalker) handleCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}

	base, target := w.callTarget(fn)
	if base != "" && isSelfLike(base) {
		return
	}
	if target == "" {
		return
	}

	if resolved, ok := w.scopes.Resolve(target); ok {
		target = resolved
	} else if base != "" {
		if resolvedBase, ok := w.scopes.Resolve(base); ok {
			target = resolvedBase + strings.TrimPrefix(target, base)
		}
	}

	w.result.Relationships = append(w.result.Relationships, Relationship{
		SourceSymbol: w.scopes.Current(),
		TargetSymbol: target,
		Type:         RelCall,
		SourceFile:   w.path,
		SourceLine:   w.line(n),
	})
}

// callTarget returns (baseIdentifier, fullDottedName) for a call's function
// expression: identifier calls have an empty base; attribute calls
// ("self.foo", "np.array") surface the leftmost identifier as base so
// self/cls/super calls can be dropped (spec.md §4.3 Invariants).
func (w *pythonWalker) callTarget(fn *sitter.Node) (base, full string) {
	switch fn.Type() {
	case "identifier":
		return "", w.text(fn)
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		full = w.text(fn)
		for obj != nil && obj.Type() == "attribute" {
			obj = obj.ChildByFieldName("object")
		}
		if obj != nil {
			base = w.text(obj)
		}
		_ = attr
		return base, full
	default:
		return "", ""
	}
}

func childOfType(n *sitter.Node, t string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == t {
			return n.Child(i)
		}
	}
	return nil
}
