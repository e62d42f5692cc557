// Package pathutil implements C11, the path parser and working-directory
// resolver: splitting a "vol:path/to/entry" string into a volume name and
// its component chain, and filling in a volume-less path's volume from the
// process-wide working directory (spec §4.11).
//
// Grounded on the teacher's BaseDriver path handling (posixpath.Clean plus
// filepath.Separator-splitting ahead of every driver call), generalized
// here to the "Volume:path" grammar spec §4.11 defines, since this module
// addresses more than one mounted volume at a time.
package pathutil

import (
	"strings"
	"sync"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// MaxVolumeName bounds the Volume production in spec §4.11's grammar.
const MaxVolumeName = 64

// MaxComponentName bounds the Component production; matches the 255
// UCS-2-code-unit long-name limit package direntry enforces (spec §4.7.2).
const MaxComponentName = 255

// Path is a parsed FullPath: an optional volume name and the component
// chain identifying an entry within it.
type Path struct {
	Volume     string
	HasVolume  bool
	Components []string
}

// Parse splits full per spec §4.11's grammar:
//
//	FullPath    := ( Volume ":" )? ( "/" | "\" ) Component ( ( "/" | "\" ) Component )*
//	Volume      := [^:/\\]{1..max_vol_name}
//	Component   := [^:/\\\0]{1..max_file_name}
//
// A path with no separator at all (and so no components) is invalid: every
// FullPath names at least the root.
func Parse(full string) (Path, error) {
	rest := full
	var p Path

	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		vol := rest[:idx]
		if vol == "" || len(vol) > MaxVolumeName || strings.ContainsAny(vol, "/\\") {
			return Path{}, fatfserrors.ErrPathInvalid
		}
		p.Volume = vol
		p.HasVolume = true
		rest = rest[idx+1:]
	}

	if rest == "" || (rest[0] != '/' && rest[0] != '\\') {
		return Path{}, fatfserrors.ErrPathInvalid
	}
	rest = rest[1:]

	if rest == "" {
		// "vol:/" or "/": the root itself, zero components.
		return p, nil
	}

	for _, comp := range strings.FieldsFunc(rest, func(r rune) bool { return r == '/' || r == '\\' }) {
		if comp == "" || len(comp) > MaxComponentName || strings.ContainsRune(comp, 0) {
			return Path{}, fatfserrors.ErrPathInvalid
		}
		p.Components = append(p.Components, comp)
	}
	return p, nil
}

// IsRoot reports whether p names the volume's root directory itself.
func (p Path) IsRoot() bool { return len(p.Components) == 0 }

// WorkingDir is the process-wide current working directory (spec §4.11
// "capability: query and set per-process CWD; not thread-local unless the
// host provides it"). Every caller in this process shares the same one.
type WorkingDir struct {
	mu  sync.Mutex
	cwd Path
	set bool
}

// NewWorkingDir returns a WorkingDir with no CWD set; resolving a
// volume-less path before Set is called leaves its Volume empty.
func NewWorkingDir() *WorkingDir { return &WorkingDir{} }

// Get returns the current working directory.
func (w *WorkingDir) Get() (Path, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cwd, w.set
}

// Set replaces the current working directory. dir must be an absolute
// path (spec §4.11 "resolved by the working-dir module").
func (w *WorkingDir) Set(dir Path) error {
	if !dir.HasVolume {
		return fatfserrors.ErrPathInvalid
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cwd = dir
	w.set = true
	return nil
}

// Resolve parses raw. Every FullPath the grammar accepts is already
// rooted at some volume's root (the leading separator is mandatory), so
// "a relative path prepends the current working directory" (spec §4.11)
// only ever means substituting in the working directory's volume when
// raw names none; raw's own component chain is used as-is, unchanged.
// With no working directory set, an unqualified path's Volume is left
// empty, which callers resolve against the default (first-mounted)
// volume (spec §4.11 "a missing volume component resolves to the
// default volume") — Resolve itself never requires a working directory
// to be set.
func (w *WorkingDir) Resolve(raw string) (Path, error) {
	p, err := Parse(raw)
	if err != nil {
		return Path{}, err
	}
	if p.HasVolume {
		return p, nil
	}

	w.mu.Lock()
	cwd, set := w.cwd, w.set
	w.mu.Unlock()
	if set {
		p.Volume = cwd.Volume
	}
	return p, nil
}
