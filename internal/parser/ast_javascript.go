package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// astJavaScript covers both plain JavaScript and TypeScript, reusing the
// same scope-stack/alias-map machinery as astPython (scope.go) against the
// ES module and class grammar nodes.
type astJavaScript struct{}

func (astJavaScript) Name() string { return "ast" }

func (astJavaScript) Supports(language string) bool {
	switch language {
	case "javascript", "typescript":
		return true
	default:
		return false
	}
}

func (astJavaScript) Parse(text []byte, path, language string) (*ParsedFile, error) {
	p := sitter.NewParser()
	if language == "typescript" {
		p.SetLanguage(typescript.GetLanguage())
	} else {
		p.SetLanguage(javascript.GetLanguage())
	}

	tree, err := p.ParseCtx(context.Background(), nil, text)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lastLine := strings.Count(string(text), "\n") + 1
	w := &jsWalker{
		source: text,
		path:   path,
		scopes: newScopeStack(lastLine),
		result: &ParsedFile{Path: path, Language: language},
	}
	w.walk(tree.RootNode())
	return w.result, nil
}

type jsWalker struct {
	source []byte
	path   string
	scopes *scopeStack
	result *ParsedFile
}

func (w *jsWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.source[n.StartByte():n.EndByte()])
}

func (w *jsWalker) line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func (w *jsWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	w.scopes.PopTo(w.line(n))

	switch n.Type() {
	case "import_statement":
		w.handleImport(n)
	case "class_declaration":
		w.handleClass(n)
		return
	case "function_declaration", "method_definition":
		w.handleFunction(n)
		return
	case "call_expression":
		w.handleCall(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

// handleImport covers `import { A as B } from "mod"`, `import X from "mod"`
// and `import * as NS from "mod"`, each recorded as an IMPORTS edge from the
// current scope with any renaming captured as an alias (mirrors the Python
// "from X import A as B" invariant for the JS ecosystem's analogous form).
func (w *jsWalker) handleImport(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	module := strings.Trim(w.text(source), `"'`)
	if module == "" {
		return
	}

	clause := childOfType(n, "import_clause")
	if clause == nil {
		w.result.Relationships = append(w.result.Relationships, Relationship{
			SourceSymbol: w.scopes.Current(),
			TargetSymbol: module,
			Type:         RelImports,
			SourceFile:   w.path,
			SourceLine:   w.line(n),
		})
		return
	}

	w.walkImportClause(clause, module, n)
}

func (w *jsWalker) walkImportClause(clause *sitter.Node, module string, stmt *sitter.Node) {
	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		switch child.Type() {
		case "identifier":
			w.recordImportBinding(stmt, module, module, w.text(child))
		case "namespace_import":
			if id := childOfType(child, "identifier"); id != nil {
				w.recordImportBinding(stmt, module, module, w.text(id))
			}
		case "named_imports":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				name := spec.ChildByFieldName("name")
				alias := spec.ChildByFieldName("alias")
				imported := w.text(name)
				bound := imported
				if alias != nil {
					bound = w.text(alias)
				}
				w.recordImportBinding(stmt, module, module+"."+imported, bound)
			}
		}
	}
}

func (w *jsWalker) recordImportBinding(stmt *sitter.Node, module, target, bound string) {
	w.result.Relationships = append(w.result.Relationships, Relationship{
		SourceSymbol: w.scopes.Current(),
		TargetSymbol: target,
		Type:         RelImports,
		SourceFile:   w.path,
		SourceLine:   w.line(stmt),
	})
	if bound != "" {
		w.scopes.SetAlias(bound, target)
	}
	_ = module
}

func (w *jsWalker) handleClass(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	className := w.text(nameNode)
	endLine := int(n.EndPoint().Row) + 1

	if heritage := childOfType(n, "class_heritage"); heritage != nil {
		if base := childOfType(heritage, "identifier"); base != nil {
			w.result.Relationships = append(w.result.Relationships, Relationship{
				SourceSymbol: w.scopes.Current() + "." + className,
				TargetSymbol: w.text(base),
				Type:         RelInherits,
				SourceFile:   w.path,
				SourceLine:   w.line(n),
			})
		}
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

func (w *jsWalker) handleFunction(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	if name == "" {
		return
	}
	endLine := int(n.EndPoint().Row) + 1

	kind := SymbolFunction
	if n.Type() == "method_definition" {
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

func (w *jsWalker) handleCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}

	base, target := w.callTarget(fn)
	if base != "" && (isSelfLike(base) || base == "super") {
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

func (w *jsWalker) callTarget(fn *sitter.Node) (base, full string) {
	switch fn.Type() {
	case "identifier":
		return "", w.text(fn)
	case "member_expression":
		obj := fn.ChildByFieldName("object")
		full = w.text(fn)
		for obj != nil && obj.Type() == "member_expression" {
			obj = obj.ChildByFieldName("object")
		}
		if obj != nil {
			base = w.text(obj)
		}
		return base, full
	default:
		return "", ""
	}
}
