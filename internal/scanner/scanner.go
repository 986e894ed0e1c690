// Package scanner discovers indexable files under a project root. It
// respects .gitignore rules, skips binaries, and tags each file with a
// language and a search category.
package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/ignore"
)

// DefaultMaxFileSize caps files read for indexing.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Category values attached to scanned files.
const (
	CategoryCode = "code"
	CategoryDocs = "docs"
)

// FileInfo describes one discovered file.
type FileInfo struct {
	// Path is relative to the scan root, slash-separated.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	Size     int64
	Language string
	Category string
}

// Options configures a scan.
type Options struct {
	// RootDir is the directory to scan (default ".").
	RootDir string

	// MaxFileSize skips files larger than this many bytes
	// (default DefaultMaxFileSize).
	MaxFileSize int64

	// IgnorePatterns are gitignore-syntax patterns applied on top of the
	// root .gitignore and the built-in exclusions.
	IgnorePatterns []string

	// OnProgress, when set, is called after each accepted file.
	OnProgress func(found int, path string)
}

// Scan walks the root and returns every indexable file. Unreadable
// directories are skipped, not fatal.
func Scan(ctx context.Context, opts Options) ([]FileInfo, error) {
	root := opts.RootDir
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.IOError("resolve scan root", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.IOError("stat scan root", err).WithDetail("path", absRoot)
	}
	if !info.IsDir() {
		return nil, errors.ValidationError("scan root is not a directory", nil).
			WithDetail("path", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	matcher := ignore.New()
	matcher.AddPattern(".git/")
	matcher.AddPattern(".quarry/")
	matcher.AddPattern("node_modules/")
	matcher.AddPattern("vendor/")
	for _, p := range opts.IgnorePatterns {
		matcher.AddPattern(p)
	}
	gi := filepath.Join(absRoot, ".gitignore")
	if _, err := os.Stat(gi); err == nil {
		_ = matcher.AddFromFile(gi)
	}

	var files []FileInfo
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.Match(rel, false) {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil || fi.Size() == 0 || fi.Size() > maxSize {
			return nil
		}

		lang := DetectLanguage(rel)
		if lang == "" && isBinary(path) {
			return nil
		}

		files = append(files, FileInfo{
			Path:     rel,
			AbsPath:  path,
			Size:     fi.Size(),
			Language: lang,
			Category: Category(rel),
		})
		if opts.OnProgress != nil {
			opts.OnProgress(len(files), rel)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}

// languageMap maps extensions and well-known filenames to languages.
var languageMap = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",
	".ex":    "elixir",
	".exs":   "elixir",
	".lua":   "lua",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".sql":   "sql",
	".proto": "protobuf",
	".html":  "html",
	".css":   "css",

	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",

	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",

	"Dockerfile": "dockerfile",
	"Makefile":   "makefile",
	"makefile":   "makefile",
}

// docsLanguages are rendered and searched as prose rather than code.
var docsLanguages = map[string]bool{
	"markdown": true,
	"rst":      true,
	"text":     true,
}

// DetectLanguage maps a file path to a language name, or "" when unknown.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := languageMap[base]; ok {
		return lang
	}
	if lang, ok := languageMap[strings.ToLower(filepath.Ext(base))]; ok {
		return lang
	}
	return ""
}

// Category returns the search category for a file path.
func Category(path string) string {
	if docsLanguages[DetectLanguage(path)] {
		return CategoryDocs
	}
	return CategoryCode
}

// isBinary sniffs the first 512 bytes for a null byte.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}
