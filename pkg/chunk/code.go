package chunk

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// DefaultMaxChunkSize is the code chunker's size cap in bytes.
const DefaultMaxChunkSize = 1500

// maxSiblings bounds how many preceding and following top-level declarations
// a chunk records.
const maxSiblings = 3

// MaxChunkSizeForTokens derives a byte cap from an embedding model's token
// budget: 3.5 chars per token with 15% safety headroom.
func MaxChunkSizeForTokens(maxTokens int) int {
	return int(math.Floor(float64(maxTokens) * 3.5 * 0.85))
}

// CodeChunkerOptions configures the code chunker.
type CodeChunkerOptions struct {
	// MaxChunkSize caps chunk length in bytes (default DefaultMaxChunkSize).
	MaxChunkSize int

	// OverlapLines prepends up to this many preceding source lines to each
	// chunk that does not start at line 1 (default 0).
	OverlapLines int
}

// CodeChunker splits source code along declaration boundaries, attaching
// entity, scope, import, and sibling metadata to each chunk.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	options  CodeChunkerOptions
}

// NewCodeChunker creates a code chunker with default options.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a code chunker with custom options.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.OverlapLines < 0 {
		opts.OverlapLines = 0
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		options:  opts,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns the file extensions this chunker handles.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// decl is one declaration in the parsed forest.
type decl struct {
	node     *Node
	entity   Entity
	parent   *decl
	children []*decl
}

// Chunk splits source code into declaration-aligned chunks. The language is
// inferred from the path's extension.
func (c *CodeChunker) Chunk(ctx context.Context, content, path string) ([]Chunk, error) {
	lang, ok := c.registry.LanguageForPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	config, _ := c.registry.ByName(lang)

	tree, err := c.parser.Parse(ctx, []byte(content), lang)
	if err != nil {
		return nil, err
	}

	imports := extractImports(tree, config)
	fileContext := extractContext(tree, config)
	roots := c.buildForest(tree, config)

	if len(content) <= c.options.MaxChunkSize {
		entities := make([]Entity, 0, len(roots))
		for _, d := range roots {
			entities = collectEntities(d, entities)
		}
		return []Chunk{{
			Text:      content,
			Index:     0,
			StartByte: 0,
			EndByte:   len(content),
			StartLine: 1,
			EndLine:   1 + strings.Count(strings.TrimSuffix(content, "\n"), "\n"),
			Context:   fileContext,
			Entities:  entities,
			Imports:   imports,
		}}, nil
	}

	if len(roots) == 0 {
		// Nothing to anchor declaration chunks on; split as plain text.
		return SplitText(content, SplitOptions{ChunkSize: c.options.MaxChunkSize, ChunkOverlap: 0}), nil
	}

	groups := groupDeclarations(roots, c.options.MaxChunkSize)
	chunks := make([]Chunk, 0, len(groups))
	for i, group := range groups {
		chunks = append(chunks, c.buildChunk(content, group, roots, imports, fileContext, i))
	}
	return chunks, nil
}

// buildForest parses declarations into a forest preserving nesting. Only
// container declarations (classes, interfaces, enums, namespaces) are
// descended into, so function-local declarations stay out.
func (c *CodeChunker) buildForest(tree *Tree, config *LanguageConfig) []*decl {
	var roots []*decl

	var walk func(n *Node, parent *decl)
	walk = func(n *Node, parent *decl) {
		if typ, isDecl := config.Declarations[n.Type]; isDecl {
			parentType := EntityType("")
			if parent != nil {
				parentType = parent.entity.Type
			}
			if entity, ok := entityFor(n, typ, tree.Source, tree.Language, parentType); ok {
				d := &decl{node: n, entity: entity, parent: parent}
				if parent == nil {
					roots = append(roots, d)
				} else {
					parent.children = append(parent.children, d)
				}
				if isContainer(entity.Type) {
					for _, child := range n.Children {
						walk(child, d)
					}
				}
				return
			}
		}
		for _, child := range n.Children {
			walk(child, parent)
		}
	}

	for _, child := range tree.Root.Children {
		walk(child, nil)
	}
	return roots
}

func isContainer(t EntityType) bool {
	switch t {
	case EntityClass, EntityInterface, EntityEnum, EntityNamespace:
		return true
	}
	return false
}

// groupDeclarations greedily accumulates top-level declarations until adding
// the next would push the chunk span past maxSize. A declaration that alone
// exceeds maxSize is flushed as its own oversized chunk.
func groupDeclarations(roots []*decl, maxSize int) [][]*decl {
	var groups [][]*decl
	var cur []*decl
	curStart := 0

	for _, d := range roots {
		if len(cur) == 0 {
			cur = []*decl{d}
			curStart = int(d.node.StartByte)
			continue
		}
		if int(d.node.EndByte)-curStart > maxSize {
			groups = append(groups, cur)
			cur = []*decl{d}
			curStart = int(d.node.StartByte)
			continue
		}
		cur = append(cur, d)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// buildChunk materializes one declaration group into a Chunk.
func (c *CodeChunker) buildChunk(content string, group, roots []*decl, imports []Import, fileContext string, index int) Chunk {
	first := group[0]
	last := group[len(group)-1]

	startByte := int(first.node.StartByte)
	endByte := int(last.node.EndByte)
	startLine := int(first.node.StartPoint.Row) + 1
	endLine := int(last.node.EndPoint.Row) + 1

	if c.options.OverlapLines > 0 && startLine > 1 {
		startByte, startLine = extendByLines(content, startByte, startLine, c.options.OverlapLines)
	}

	var entities []Entity
	for _, d := range group {
		entities = collectEntities(d, entities)
	}

	var scope []Entity
	for p := first.parent; p != nil; p = p.parent {
		scope = append(scope, p.entity)
	}

	return Chunk{
		Text:      content[startByte:endByte],
		Index:     index,
		StartByte: startByte,
		EndByte:   endByte,
		StartLine: startLine,
		EndLine:   endLine,
		Context:   fileContext,
		Entities:  entities,
		Scope:     scope,
		Imports:   imports,
		Siblings:  collectSiblings(first, roots),
	}
}

// collectEntities flattens a declaration and its descendants, parents first.
func collectEntities(d *decl, out []Entity) []Entity {
	out = append(out, d.entity)
	for _, child := range d.children {
		out = collectEntities(child, out)
	}
	return out
}

// collectSiblings returns up to maxSiblings top-level declarations on each
// side of first, nearest first.
func collectSiblings(first *decl, roots []*decl) []Sibling {
	idx := -1
	for i, d := range roots {
		if d == first {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	var siblings []Sibling
	for j := idx - 1; j >= 0 && idx-j <= maxSiblings; j-- {
		siblings = append(siblings, Sibling{Entity: roots[j].entity, Position: SiblingBefore, Distance: idx - j})
	}
	for j := idx + 1; j < len(roots) && j-idx <= maxSiblings; j++ {
		siblings = append(siblings, Sibling{Entity: roots[j].entity, Position: SiblingAfter, Distance: j - idx})
	}
	return siblings
}

// extendByLines moves startByte back to the beginning of its line, then up
// to overlap further lines, never past line 1.
func extendByLines(content string, startByte, startLine, overlap int) (int, int) {
	for startByte > 0 && content[startByte-1] != '\n' {
		startByte--
	}
	for i := 0; i < overlap && startLine > 1; i++ {
		startByte--
		for startByte > 0 && content[startByte-1] != '\n' {
			startByte--
		}
		startLine--
	}
	return startByte, startLine
}
