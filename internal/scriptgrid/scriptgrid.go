// ABOUTME: Grids defined as Starlark scripts in a confined directory.
// ABOUTME: Each request evaluates <name>.star afresh and reads its global "grid".

package scriptgrid

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/2389/tabulator/internal/grid"
	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Ext is the file extension of grid scripts.
const Ext = ".star"

// GridGlobal is the global a script must bind to a tabulator.grid value.
const GridGlobal = "grid"

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
}

// Dir serves grid scripts from one directory. Nothing outside it can be
// read, including through load().
type Dir struct {
	path string
	root *os.Root
}

// Open opens dir as a script directory.
func Open(dir string) (*Dir, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open grid scripts: %w", err)
	}
	return &Dir{path: dir, root: root}, nil
}

// Close releases the directory handle.
func (d *Dir) Close() error {
	return d.root.Close()
}

// Path returns the directory the scripts live in.
func (d *Dir) Path() string {
	return d.path
}

// Find returns the script grid called name, if its file exists.
func (d *Dir) Find(name string) (grid.Source, bool) {
	if !validName.MatchString(name) {
		return nil, false
	}
	info, err := d.root.Stat(name + Ext)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return &Script{dir: d, name: name}, true
}

// Names lists the grids defined in the directory, sorted.
func (d *Dir) Names() ([]string, error) {
	matches, err := fs.Glob(d.root.FS(), "*"+Ext)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(m, Ext)
		if validName.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Script is one grid script.
type Script struct {
	dir  *Dir
	name string
}

func (s *Script) Name() string { return s.name }

func (s *Script) Location() string {
	return filepath.Join(s.dir.path, s.name+Ext)
}

// Load evaluates the script. A script that does not bind "grid" to a
// tabulator.grid value yields a nil descriptor.
func (s *Script) Load(ctx context.Context, req *grid.Request) (*grid.Descriptor, error) {
	src, err := s.dir.root.ReadFile(s.name + Ext)
	if err != nil {
		return nil, err
	}

	thread, done := s.dir.newThread(ctx, s.name)
	defer done()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, s.Location(), src, predeclared())
	if err != nil {
		return nil, scriptError(err)
	}

	g, ok := globals[GridGlobal].(*gridValue)
	if !ok {
		return nil, nil
	}
	return g.descriptor(s.dir, s.name), nil
}

// newThread creates an interpreter thread bound to ctx. The returned func
// must be called when the thread is no longer used.
func (d *Dir) newThread(ctx context.Context, name string) (*starlark.Thread, func()) {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			log.Printf("grid %s: %s", name, msg)
		},
		Load: d.newLoader(ctx),
	}
	return thread, cancelOn(ctx, thread)
}

// cancelOn cancels thread once ctx is done, until the returned func is called.
func cancelOn(ctx context.Context, thread *starlark.Thread) func() {
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	return func() { stop() }
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
}

// newLoader returns a load() implementation reading modules from the
// script root. Each module is executed at most once per thread, on a
// thread that ctx cancels like the one that loads it.
func (d *Dir) newLoader(ctx context.Context) func(*starlark.Thread, string) (starlark.StringDict, error) {
	cache := make(map[string]*loadEntry)
	return func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
		if !strings.HasSuffix(module, Ext) {
			return nil, fmt.Errorf("load %q: only %s modules can be loaded", module, Ext)
		}
		e, ok := cache[module]
		if ok {
			if e == nil {
				return nil, fmt.Errorf("load %q: cycle in load graph", module)
			}
			return e.globals, e.err
		}
		cache[module] = nil

		src, err := d.root.ReadFile(module)
		if err == nil {
			child := &starlark.Thread{Name: "load " + module, Print: thread.Print, Load: thread.Load}
			done := cancelOn(ctx, child)
			var globals starlark.StringDict
			globals, err = starlark.ExecFileOptions(fileOptions, child, filepath.Join(d.path, module), src, predeclared())
			done()
			cache[module] = &loadEntry{globals: globals, err: err}
			return globals, err
		}
		cache[module] = &loadEntry{err: err}
		return nil, err
	}
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"tabulator": Module,
		"json":      starlarkjson.Module,
		"math":      starlarkmath.Module,
	}
}

// scriptError turns an interpreter error into the message a script author
// meant, dropping the "fail: " prefix of fail() calls.
func scriptError(err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return errors.New(strings.TrimPrefix(evalErr.Msg, "fail: "))
	}
	return err
}
