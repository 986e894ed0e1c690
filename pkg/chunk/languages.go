package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry maps file extensions to language configurations and
// tree-sitter grammars.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the built-in languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()

	return r
}

// ByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) ByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[langName]
	return config, ok
}

// ByName returns the language configuration by language name.
func (r *LanguageRegistry) ByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// LanguageForPath returns the language name for a path-like identifier.
func (r *LanguageRegistry) LanguageForPath(path string) (string, bool) {
	config, ok := r.ByExtension(filepath.Ext(path))
	if !ok {
		return "", false
	}
	return config.Name, true
}

// TreeSitterLanguage returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) TreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns all registered file extensions.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) register(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	r.register(&LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		Declarations: map[string]EntityType{
			"function_declaration": EntityFunction,
			"method_declaration":   EntityMethod,
			"type_declaration":     EntityTypeAlias,
			"const_declaration":    EntityVariable,
			"var_declaration":      EntityVariable,
		},
		ImportTypes:  []string{"import_declaration"},
		ContextTypes: []string{"package_clause", "import_declaration"},
	}, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	decls := map[string]EntityType{
		"function_declaration":           EntityFunction,
		"generator_function_declaration": EntityFunction,
		"method_definition":              EntityMethod,
		"class_declaration":              EntityClass,
		"abstract_class_declaration":     EntityClass,
		"interface_declaration":          EntityInterface,
		"type_alias_declaration":         EntityTypeAlias,
		"enum_declaration":               EntityEnum,
		"internal_module":                EntityNamespace,
		"lexical_declaration":            EntityVariable,
		"variable_declaration":           EntityVariable,
		"public_field_definition":        EntityProperty,
	}

	r.register(&LanguageConfig{
		Name:         "typescript",
		Extensions:   []string{".ts"},
		Declarations: decls,
		ImportTypes:  []string{"import_statement"},
		ContextTypes: []string{"import_statement"},
	}, typescript.GetLanguage())

	r.register(&LanguageConfig{
		Name:         "tsx",
		Extensions:   []string{".tsx"},
		Declarations: decls,
		ImportTypes:  []string{"import_statement"},
		ContextTypes: []string{"import_statement"},
	}, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	decls := map[string]EntityType{
		"function_declaration":           EntityFunction,
		"generator_function_declaration": EntityFunction,
		"method_definition":              EntityMethod,
		"class_declaration":              EntityClass,
		"lexical_declaration":            EntityVariable,
		"variable_declaration":           EntityVariable,
		"field_definition":               EntityProperty,
	}

	r.register(&LanguageConfig{
		Name:         "javascript",
		Extensions:   []string{".js", ".mjs"},
		Declarations: decls,
		ImportTypes:  []string{"import_statement"},
		ContextTypes: []string{"import_statement"},
	}, javascript.GetLanguage())

	// JSX shares the JavaScript grammar.
	r.register(&LanguageConfig{
		Name:         "jsx",
		Extensions:   []string{".jsx"},
		Declarations: decls,
		ImportTypes:  []string{"import_statement"},
		ContextTypes: []string{"import_statement"},
	}, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		Declarations: map[string]EntityType{
			"function_definition": EntityFunction,
			"class_definition":    EntityClass,
		},
		ImportTypes:  []string{"import_statement", "import_from_statement"},
		ContextTypes: []string{"import_statement", "import_from_statement"},
	}, python.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
