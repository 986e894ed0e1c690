// Package chunk splits documents into retrievable units: a recursive
// separator-priority text splitter for prose and an AST-aware chunker for
// source code, with an extension-based router between them.
package chunk

// EntityType tags a code declaration. The set is open: languages may
// introduce further tags.
type EntityType string

const (
	EntityFunction    EntityType = "function"
	EntityClass       EntityType = "class"
	EntityInterface   EntityType = "interface"
	EntityTypeAlias   EntityType = "type"
	EntityEnum        EntityType = "enum"
	EntityVariable    EntityType = "variable"
	EntityMethod      EntityType = "method"
	EntityProperty    EntityType = "property"
	EntityGetter      EntityType = "getter"
	EntitySetter      EntityType = "setter"
	EntityConstructor EntityType = "constructor"
	EntityNamespace   EntityType = "namespace"
)

// Entity is a code declaration reduced to its searchable surface.
type Entity struct {
	Name      string
	Type      EntityType
	Signature string
}

// SiblingPosition says whether a sibling declaration precedes or follows
// the chunk it is attached to.
type SiblingPosition string

const (
	SiblingBefore SiblingPosition = "before"
	SiblingAfter  SiblingPosition = "after"
)

// Sibling is a nearby top-level declaration relative to a chunk's first
// declaration. Distance is in declarations, starting at 1.
type Sibling struct {
	Entity
	Position SiblingPosition
	Distance int
}

// Import is one import statement of the source file.
type Import struct {
	// Path is the imported module path, best effort.
	Path string

	// Name is the local binding (alias, default, or namespace), if any.
	Name string

	// Raw is the statement as written.
	Raw string
}

// Chunk is one retrievable unit of a document. Byte offsets are half-open
// [StartByte, EndByte) into the original content; lines are 1-indexed and
// inclusive. Code chunks additionally carry entity, scope, import, and
// sibling metadata; text chunks leave those empty.
type Chunk struct {
	Text  string
	Index int

	StartByte int
	EndByte   int
	StartLine int
	EndLine   int

	// Context is surrounding file context (package clause, imports) that is
	// not part of the chunk span itself.
	Context string

	Entities []Entity
	Scope    []Entity
	Imports  []Import
	Siblings []Sibling
}

// Tree is a parsed syntax tree.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a node of the syntax tree.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in source code. Row is 0-indexed.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig describes how one language's syntax tree maps onto
// declaration entities.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Declarations maps syntax node types to the entity tag they declare.
	Declarations map[string]EntityType

	// ImportTypes are node types carrying import statements.
	ImportTypes []string

	// ContextTypes are top-level node types kept as file context
	// (package clauses and the import block itself).
	ContextTypes []string
}
