// Package globalrand finds randomness that bypasses an explicit source.
// Campaigns replay from a seed only if every draw goes through a seeded
// *rand.Rand, so math/rand (v1) imports and package-level math/rand/v2
// calls are reported.
package globalrand

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
)

// Issue is one finding.
type Issue struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", i.File, i.Line, i.Column, i.Message)
}

// ExemptFile excludes one file from the check.
type ExemptFile struct {
	Path   string `yaml:"path" json:"path"`
	Reason string `yaml:"reason" json:"reason"`
}

// Config configures the linter.
type Config struct {
	ExemptFiles       []ExemptFile `yaml:"exempt_files" json:"exempt_files"`
	ExemptDirectories []string     `yaml:"exempt_directories" json:"exempt_directories"`
	// IncludeTests also checks _test.go files.
	IncludeTests bool `yaml:"include_tests" json:"include_tests"`
}

// constructors build explicit sources and are always allowed.
var constructors = map[string]bool{
	"New":        true,
	"NewPCG":     true,
	"NewChaCha8": true,
	"NewZipf":    true,
}

// LintProject checks every Go file under rootDir. Directories named vendor
// or starting with "." or "_" are skipped, like the go tool does.
func LintProject(rootDir string, config *Config) ([]Issue, error) {
	if config == nil {
		config = &Config{}
	}

	var issues []Issue
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != rootDir && (name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			for _, dir := range config.ExemptDirectories {
				if path == filepath.Join(rootDir, dir) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		if !config.IncludeTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}
		for _, exempt := range config.ExemptFiles {
			if strings.HasSuffix(filepath.ToSlash(path), filepath.ToSlash(exempt.Path)) {
				return nil
			}
		}

		fileIssues, err := LintFile(path)
		if err != nil {
			return fmt.Errorf("error linting file %s: %w", path, err)
		}
		issues = append(issues, fileIssues...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}
	return issues, nil
}

// LintFile checks one Go file.
func LintFile(filePath string) ([]Issue, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}
	return lint(fset, filePath, file), nil
}

// LintSource checks Go source held in memory.
func LintSource(name string, src []byte) ([]Issue, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}
	return lint(fset, name, file), nil
}

func lint(fset *token.FileSet, filePath string, file *ast.File) []Issue {
	var issues []Issue
	report := func(pos token.Pos, msg string) {
		p := fset.Position(pos)
		issues = append(issues, Issue{File: filePath, Line: p.Line, Column: p.Column, Message: msg})
	}

	v2Name := ""
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		switch path {
		case "math/rand":
			report(imp.Pos(), "math/rand draws from a shared global source. Use math/rand/v2 with an explicit seeded source.")
		case "math/rand/v2":
			v2Name = "rand"
			if imp.Name != nil {
				v2Name = imp.Name.Name
			}
			if v2Name == "." {
				report(imp.Pos(), "Dot import of math/rand/v2 hides calls to the global source.")
				v2Name = ""
			}
		}
	}
	if v2Name == "" || v2Name == "_" {
		return issues
	}

	shadowed := localNames(file, v2Name)
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if !ok || pkg.Name != v2Name || shadowed[pkg.Pos()] {
			return true
		}
		if !constructors[sel.Sel.Name] {
			report(call.Pos(), fmt.Sprintf("rand.%s uses the global source and cannot be replayed. Draw from a seeded *rand.Rand instead.", sel.Sel.Name))
		}
		return true
	})
	return issues
}

// localNames returns the positions of identifiers named name that refer to
// a local declaration rather than the import. It covers the common case of
// a variable or parameter called rand inside a function body.
func localNames(file *ast.File, name string) map[token.Pos]bool {
	out := make(map[token.Pos]bool)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		declared := declares(fn.Type, name)
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.AssignStmt:
				if n.Tok == token.DEFINE {
					for _, lhs := range n.Lhs {
						if id, ok := lhs.(*ast.Ident); ok && id.Name == name {
							declared = true
						}
					}
				}
			case *ast.ValueSpec:
				for _, id := range n.Names {
					if id.Name == name {
						declared = true
					}
				}
			case *ast.Ident:
				if declared && n.Name == name {
					out[n.Pos()] = true
				}
			}
			return true
		})
	}
	return out
}

func declares(ft *ast.FuncType, name string) bool {
	for _, list := range []*ast.FieldList{ft.Params, ft.Results} {
		if list == nil {
			continue
		}
		for _, f := range list.List {
			for _, id := range f.Names {
				if id.Name == name {
					return true
				}
			}
		}
	}
	return false
}
