package chunk

import "strings"

// entityFor reduces a declaration node to its Entity. parentType is the
// entity type of the nearest enclosing declaration, or "" at file level.
func entityFor(n *Node, typ EntityType, source []byte, language string, parentType EntityType) (Entity, bool) {
	typ = refineType(n, typ, source, parentType)
	name := declName(n, source, language)
	if name == "" {
		return Entity{}, false
	}
	return Entity{Name: name, Type: typ, Signature: signature(n, source)}, true
}

// refineType sharpens the registry's coarse node-type mapping using local
// structure: accessor keywords, constructor names, arrow-function bindings,
// and class membership.
func refineType(n *Node, typ EntityType, source []byte, parentType EntityType) EntityType {
	switch typ {
	case EntityMethod:
		if n.ChildByType("get") != nil {
			return EntityGetter
		}
		if n.ChildByType("set") != nil {
			return EntitySetter
		}
		if name := n.ChildByType("property_identifier"); name != nil && name.Content(source) == "constructor" {
			return EntityConstructor
		}
	case EntityVariable:
		// const f = () => {} and const f = function () {} declare functions.
		if declarator := n.ChildByType("variable_declarator"); declarator != nil {
			for _, fn := range []string{"arrow_function", "function", "function_expression"} {
				if declarator.ChildByType(fn) != nil {
					return EntityFunction
				}
			}
		}
	case EntityFunction:
		// Python methods are function definitions nested in a class body.
		if parentType == EntityClass {
			return EntityMethod
		}
	}
	return typ
}

// declName extracts the declared name from a declaration node.
func declName(n *Node, source []byte, language string) string {
	switch n.Type {
	case "method_declaration":
		if id := n.ChildByType("field_identifier"); id != nil {
			return id.Content(source)
		}
	case "type_declaration":
		if spec := n.ChildByType("type_spec"); spec != nil {
			if id := spec.ChildByType("type_identifier"); id != nil {
				return id.Content(source)
			}
		}
	case "const_declaration", "var_declaration":
		if language == "go" {
			for _, specType := range []string{"const_spec", "var_spec"} {
				if spec := n.DescendantByType(specType); spec != nil {
					if id := spec.ChildByType("identifier"); id != nil {
						return id.Content(source)
					}
				}
			}
			return ""
		}
	}

	// JS/TS variable declarations bind names inside a declarator.
	if declarator := n.ChildByType("variable_declarator"); declarator != nil {
		if id := declarator.ChildByType("identifier"); id != nil {
			return id.Content(source)
		}
	}

	for _, idType := range []string{"identifier", "type_identifier", "property_identifier"} {
		if id := n.ChildByType(idType); id != nil {
			return id.Content(source)
		}
	}
	return ""
}

// signature is the declaration's first line, cut before the opening brace.
func signature(n *Node, source []byte) string {
	content := n.Content(source)
	if content == "" {
		return ""
	}

	firstLine := content
	if idx := strings.IndexByte(firstLine, '\n'); idx != -1 {
		firstLine = firstLine[:idx]
	}
	if idx := strings.IndexByte(firstLine, '{'); idx != -1 {
		firstLine = firstLine[:idx]
	}
	return strings.TrimSpace(firstLine)
}

// extractImports collects the file's import statements in source order.
func extractImports(tree *Tree, config *LanguageConfig) []Import {
	var imports []Import
	for _, node := range tree.Root.Children {
		if !containsType(config.ImportTypes, node.Type) {
			continue
		}
		imports = append(imports, parseImport(node, tree.Source, tree.Language)...)
	}
	return imports
}

// parseImport expands one import node. Go import declarations may group
// several specs; other languages yield one import per statement.
func parseImport(n *Node, source []byte, language string) []Import {
	if language == "go" {
		var specs []Import
		n.walk(func(node *Node) bool {
			if node.Type != "import_spec" {
				return true
			}
			imp := Import{Raw: node.Content(source)}
			if path := node.ChildByType("interpreted_string_literal"); path != nil {
				imp.Path = strings.Trim(path.Content(source), `"`)
			}
			if alias := node.ChildByType("package_identifier"); alias != nil {
				imp.Name = alias.Content(source)
			}
			specs = append(specs, imp)
			return false
		})
		if len(specs) > 0 {
			return specs
		}
		return []Import{{Raw: n.Content(source)}}
	}

	imp := Import{Raw: n.Content(source)}

	switch language {
	case "python":
		if name := n.DescendantByType("dotted_name"); name != nil {
			imp.Path = name.Content(source)
		}
	default:
		if path := n.ChildByType("string"); path != nil {
			imp.Path = strings.Trim(path.Content(source), "\"'`")
		}
		if clause := n.ChildByType("import_clause"); clause != nil {
			if id := clause.ChildByType("identifier"); id != nil {
				imp.Name = id.Content(source)
			} else if ns := clause.ChildByType("namespace_import"); ns != nil {
				if id := ns.ChildByType("identifier"); id != nil {
					imp.Name = id.Content(source)
				}
			}
		}
	}

	return []Import{imp}
}

// extractContext joins the file's context nodes (package clause, import
// block) into one string.
func extractContext(tree *Tree, config *LanguageConfig) string {
	var parts []string
	for _, node := range tree.Root.Children {
		if containsType(config.ContextTypes, node.Type) {
			parts = append(parts, node.Content(tree.Source))
		}
	}
	return strings.Join(parts, "\n\n")
}

func containsType(types []string, t string) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// walk traverses the subtree depth-first; fn returning false skips the
// node's children.
func (n *Node) walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.walk(fn)
	}
}
