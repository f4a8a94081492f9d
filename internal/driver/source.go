package driver

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"borrowsim/internal/diag"
	"borrowsim/internal/scenarios"
	"borrowsim/internal/script"
	"borrowsim/internal/source"
)

// Source names one script to replay: a file on disk or a built-in scenario.
type Source struct {
	Path     string
	Scenario string
}

// FileSource returns a Source for the script at path.
func FileSource(path string) Source { return Source{Path: path} }

// ScenarioSource returns a Source for the built-in scenario name.
func ScenarioSource(name string) Source { return Source{Scenario: name} }

func (s Source) String() string {
	if s.Scenario != "" {
		return s.Scenario
	}
	return s.Path
}

// ExpandPaths turns directories into the script files they contain (sorted,
// recursively) and keeps plain files as they are.
func ExpandPaths(paths []string) ([]Source, error) {
	var out []Source
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			// missing files are reported per script by the loader
			out = append(out, FileSource(p))
			continue
		}
		if !st.IsDir() {
			out = append(out, FileSource(p))
			continue
		}
		var files []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ferr := script.FormatOf(path); ferr == nil {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		// Сортируем для детерминированного порядка
		sort.Strings(files)
		for _, f := range files {
			out = append(out, FileSource(f))
		}
	}
	return out, nil
}

// load reads one source. Errors are also reported into bag.
func load(fileSet *source.FileSet, src Source, bag *diag.Bag) (*script.Script, error) {
	var (
		s   *script.Script
		err error
	)
	if src.Scenario != "" {
		s, err = scenarios.Get(src.Scenario)
		if err == nil {
			// a virtual file gives the scenario its own path in diagnostics
			s.File = fileSet.AddVirtual("scenario/"+s.Name, nil)
			s.Normalize()
		}
	} else {
		s, err = script.Load(fileSet, src.Path)
	}
	if err == nil {
		return s, nil
	}

	code := diag.ScrDecode
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		code = diag.IOLoadFileError
	case errors.Is(err, script.ErrUnknownFormat):
		code = diag.ScrUnknownFormat
	case errors.Is(err, scenarios.ErrUnknown):
		code = diag.ScrUnknownScenario
	}
	bag.Add(diag.NewError(code, source.Span{}, err.Error()))
	return nil, err
}
