// Package runfactory resolves a wrapper name to a concrete per-language
// wrapper file, searching configured wrapper base directories in a fixed
// extension priority order.
package runfactory

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oriys/taskrunner/internal/domain"
)

// Kind is the flavor of run a factory resolves a wrapper for, reusing
// the task descriptor's own run-kind enum.
type Kind = domain.Kind

const (
	KindExecute = domain.KindExecute
	KindExtract = domain.KindExtract
	KindAbort   = domain.KindAbort
)

// Language is the per-language family a resolved wrapper belongs to;
// it drives argv construction and environment deltas in the task run
// engine.
type Language int

const (
	LangShell Language = iota
	LangBatch
	LangMake
	LangPerl
	LangPython
	LangRuby
	LangAnt
	LangNAnt
	LangWSH
)

// extensionPriority is the fixed wrapper search order. Batch and WSH
// entries are Windows-only.
var extensionPriority = []struct {
	ext        string
	lang       Language
	windowsOnly bool
}{
	{".bat", LangBatch, true},
	{".sh", LangShell, false},
	{".mk", LangMake, false},
	{".pl", LangPerl, false},
	{".py", LangPython, false},
	{".rb", LangRuby, false},
	{".xml", LangAnt, false},
	{".build", LangNAnt, false},
	{".vbs", LangWSH, true},
	{".js", LangWSH, true},
}

// ErrNoWrapper is returned when no base directory holds a matching
// wrapper file. Optional flavors (abort, extraction) treat this as
// "skip"; execution treats it as a fatal configuration error.
var ErrNoWrapper = errors.New("runfactory: no wrapper found")

// Wrapper describes a resolved wrapper file.
type Wrapper struct {
	Path string
	Lang Language
	Kind Kind
}

// Factory resolves wrapper names against a fixed list of base
// directories, in the order internal/config's wrapper dirs are declared.
type Factory struct {
	BaseDirs []string
	IsGOOS   func() string
}

// New builds a Factory over baseDirs.
func New(baseDirs []string) *Factory {
	return &Factory{BaseDirs: baseDirs, IsGOOS: func() string { return runtime.GOOS }}
}

// basename returns the file stem a wrapper search matches against for
// the given run kind (the abort flavor is its own kind).
func basename(kind Kind) string {
	switch kind {
	case KindExtract:
		return "extractor"
	case KindAbort:
		return "wrapper_abort"
	default:
		return "wrapper"
	}
}

// Resolve finds the wrapper file for wrapperName and kind, iterating
// base directories in order and, within each, the fixed extension
// priority list.
func (f *Factory) Resolve(wrapperName string, kind Kind) (*Wrapper, error) {
	base := basename(kind)
	windows := f.goos() == "windows"

	for _, dir := range f.BaseDirs {
		wrapperDir := filepath.Join(dir, wrapperName)
		info, err := os.Stat(wrapperDir)
		if err != nil || !info.IsDir() {
			continue
		}
		for _, ext := range extensionPriority {
			if ext.windowsOnly && !windows {
				continue
			}
			pattern := filepath.Join(wrapperDir, base+ext.ext)
			matches, err := doublestar.FilepathGlob(pattern)
			if err != nil || len(matches) == 0 {
				continue
			}
			return &Wrapper{Path: matches[0], Lang: ext.lang, Kind: kind}, nil
		}
	}
	return nil, ErrNoWrapper
}

func (f *Factory) goos() string {
	if f.IsGOOS != nil {
		return f.IsGOOS()
	}
	return runtime.GOOS
}
