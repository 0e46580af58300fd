package plugins

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kingrea/lattice-isolate/resolver"
)

// GoSource is a local source backed by Go packages interpreted by yaegi.
//
// The directory uses a GOPATH layout: the artifact a.b.Sym is the exported
// top-level identifier Sym of the package under <dir>/src/a/b. Every GoSource
// owns a single interpreter that only sees the standard library and its own
// packages, so nothing linked into the host binary leaks into plugin code.
type GoSource struct {
	label string
	dir   string

	mu       sync.Mutex
	interp   *interp.Interpreter
	imported map[string]string
}

// NewGoSource returns a source interpreting packages below dir/src.
func NewGoSource(label, dir string) *GoSource {
	return &GoSource{
		label:    label,
		dir:      filepath.Clean(dir),
		imported: make(map[string]string),
	}
}

func (s *GoSource) String() string {
	return fmt.Sprintf("%s (go %s)", s.label, s.dir)
}

// Dir returns the GOPATH-style root of the source.
func (s *GoSource) Dir() string {
	return s.dir
}

// Find interprets the package holding name and returns the symbol's value.
// Types resolve to their reflect.Type.
func (s *GoSource) Find(name string) (*resolver.Artifact, error) {
	importPath, symbol, err := splitGoName(name)
	if err != nil {
		return nil, err
	}
	if importPath == "" {
		return nil, s.notPresent(name)
	}
	pkgDir := filepath.Join(s.dir, "src", filepath.FromSlash(importPath))
	pkg, err := parseGoPackage(pkgDir)
	if err != nil {
		if errors.Is(err, resolver.ErrNotPresent) {
			return nil, s.notPresent(name)
		}
		return nil, resolver.InvalidArtifactError{Name: name, Location: pkgDir, Err: err}
	}
	kind, ok := pkg.decls[symbol]
	if !ok {
		return nil, s.notPresent(name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	alias, err := s.importLocked(importPath)
	if err != nil {
		return nil, resolver.InvalidArtifactError{Name: name, Location: pkgDir, Err: err}
	}
	expr := alias + "." + symbol
	if kind == declType {
		expr = fmt.Sprintf("reflect.TypeOf((*%s)(nil)).Elem()", expr)
	}
	v, err := s.interp.Eval(expr)
	if err != nil {
		return nil, resolver.InvalidArtifactError{Name: name, Location: pkgDir, Err: fmt.Errorf("evaluate %s: %w", symbol, err)}
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, resolver.InvalidArtifactError{Name: name, Location: pkgDir, Err: fmt.Errorf("%s has no value", symbol)}
	}
	return &resolver.Artifact{
		Name:     name,
		Origin:   resolver.OriginLocal,
		Location: pkgDir,
		Value:    v.Interface(),
	}, nil
}

// Names lists every exported top-level identifier below dir/src.
func (s *GoSource) Names() ([]string, error) {
	root := filepath.Join(s.dir, "src")
	var names []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() || p == root {
			return nil
		}
		pkg, err := parseGoPackage(p)
		if err != nil {
			if errors.Is(err, resolver.ErrNotPresent) {
				return nil
			}
			return fmt.Errorf("plugin: %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		prefix := strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
		for symbol := range pkg.decls {
			names = append(names, prefix+"."+symbol)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *GoSource) notPresent(name string) error {
	return fmt.Errorf("plugin: %s in %s: %w", name, s.label, resolver.ErrNotPresent)
}

// importLocked loads importPath into the interpreter once and returns the
// alias it is bound to. Aliases keep same-named packages apart. A failed
// import leaves yaegi with a half-registered package, so the interpreter is
// discarded and the next Find starts from a clean one.
func (s *GoSource) importLocked(importPath string) (string, error) {
	if s.interp == nil {
		i := interp.New(interp.Options{GoPath: s.dir})
		if err := i.Use(stdlib.Symbols); err != nil {
			return "", fmt.Errorf("load stdlib symbols: %w", err)
		}
		if _, err := i.Eval(`import "reflect"`); err != nil {
			return "", fmt.Errorf("import reflect: %w", err)
		}
		s.interp = i
	}
	if alias, ok := s.imported[importPath]; ok {
		return alias, nil
	}
	alias := fmt.Sprintf("plugin%d", len(s.imported))
	if _, err := s.interp.Eval(fmt.Sprintf("import %s %q", alias, importPath)); err != nil {
		s.interp = nil
		s.imported = make(map[string]string)
		return "", fmt.Errorf("interpret %s: %w", importPath, err)
	}
	s.imported[importPath] = alias
	return alias, nil
}

// splitGoName maps a.b.Sym to ("a/b", "Sym"). Names without a package part
// map to an empty import path.
func splitGoName(name string) (string, string, error) {
	if strings.ContainsAny(name, `/\`) {
		return "", "", resolver.InvalidNameError{Name: name, Reason: "contains a path separator"}
	}
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "", name, nil
	}
	segments := strings.Split(name, ".")
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return "", "", resolver.InvalidNameError{Name: name, Reason: "empty name segment"}
		}
	}
	return path.Join(segments[:len(segments)-1]...), name[idx+1:], nil
}

type declKind int

const (
	declValue declKind = iota
	declType
)

type goPackage struct {
	name  string
	decls map[string]declKind
}

// parseGoPackage reads the exported top-level declarations of the package in
// dir. A missing directory or one without Go files is resolver.ErrNotPresent.
func parseGoPackage(dir string) (*goPackage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, resolver.ErrNotPresent
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	fset := token.NewFileSet()
	pkg := &goPackage{decls: make(map[string]declKind)}
	files := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		if pkg.name == "" {
			pkg.name = file.Name.Name
		} else if pkg.name != file.Name.Name {
			return nil, fmt.Errorf("found packages %s and %s in %s", pkg.name, file.Name.Name, dir)
		}
		collectDecls(file, pkg.decls)
		files++
	}
	if files == 0 {
		return nil, resolver.ErrNotPresent
	}
	return pkg, nil
}

func collectDecls(file *ast.File, decls map[string]declKind) {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.IsExported() {
				decls[d.Name.Name] = declValue
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch sp := spec.(type) {
				case *ast.ValueSpec:
					for _, ident := range sp.Names {
						if ident.IsExported() {
							decls[ident.Name] = declValue
						}
					}
				case *ast.TypeSpec:
					if sp.Name.IsExported() {
						decls[sp.Name.Name] = declType
					}
				}
			}
		}
	}
}
