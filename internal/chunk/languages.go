package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// definitionKinds is the fixed, open-set of node kinds treated as definitions across every
// grammar this chunker might ever see (GLOSSARY "Definition kinds"). A new grammar only
// needs an entry in the registry below to have its specific kinds recognized precisely;
// this set exists so the classifier can still make a best-effort call for grammars that
// reuse a familiar kind name without a registered LanguageConfig.
var definitionKinds = map[string]bool{
	"function_declaration":  true,
	"function_definition":   true,
	"method_definition":     true,
	"method_declaration":    true,
	"class_declaration":     true,
	"class_definition":      true,
	"interface_declaration": true,
	"type_alias_declaration": true,
	"type_declaration":      true,
	"function_item":         true,
	"impl_item":             true,
	"struct_item":           true,
	"enum_item":             true,
	"trait_item":            true,
	"mod_item":              true,
	"type_item":             true,
	"const_item":            true,
	"static_item":           true,
	"function_def":          true,
	"class_def":             true,
	"async_function_def":    true,
}

// LanguageRegistry manages supported languages and their configurations.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig // keyed by language name
	extToLang   map[string]string          // extension -> language name
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a new registry with default language configurations.
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

// GetByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
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

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the tree-sitter language for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns all supported file extensions.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang

	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		DefinitionTypes: []string{
			"function_declaration",
			"method_declaration",
			"type_declaration",
		},
		ValueBindingTypes: []string{
			"const_declaration",
			"var_declaration",
		},
		NameFields: []string{"name"},
	}
	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		DefinitionTypes: []string{
			"function_declaration",
			"method_definition",
			"class_declaration",
			"interface_declaration",
			"type_alias_declaration",
		},
		ValueBindingTypes: []string{
			"lexical_declaration", // const / let
			"variable_declaration", // var
		},
		NameFields: []string{"name", "property"},
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:              "tsx",
		Extensions:        []string{".tsx"},
		DefinitionTypes:   tsConfig.DefinitionTypes,
		ValueBindingTypes: tsConfig.ValueBindingTypes,
		NameFields:        tsConfig.NameFields,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs"},
		DefinitionTypes: []string{
			"function_declaration",
			"function",
			"method_definition",
			"class_declaration",
		},
		ValueBindingTypes: []string{
			"lexical_declaration",
			"variable_declaration",
		},
		NameFields: []string{"name", "property"},
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	jsxConfig := &LanguageConfig{
		Name:              "jsx",
		Extensions:        []string{".jsx"},
		DefinitionTypes:   jsConfig.DefinitionTypes,
		ValueBindingTypes: jsConfig.ValueBindingTypes,
		NameFields:        jsConfig.NameFields,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		DefinitionTypes: []string{
			"function_definition",
			"class_definition",
		},
		ValueBindingTypes: []string{
			"assignment",
		},
		NameFields: []string{"name", "identifier"},
	}
	r.registerLanguage(config, python.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the global language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
