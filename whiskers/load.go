package whiskers

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-lab/go/warnonerror"
	"gopkg.in/yaml.v3"

	"github.com/m-lab/remycc/remy"
)

// Format is a serialization of a whisker table.
type Format string

// Supported formats.
const (
	JSON Format = "json"
	YAML Format = "yaml"
	// Dump is the text produced by WriteDump. It rounds bounds and
	// intersends, so it is written for analysis and never read as a table.
	Dump Format = "dump"
)

// ErrDumpNotTable is returned when a whisker dump is loaded as a table.
var ErrDumpNotTable = errors.New("whiskers: dumps are rounded and cannot be loaded as a table; use ParseDump")

// FormatOf infers the format from a file name, ignoring a trailing ".gz".
func FormatOf(path string) (Format, bool, error) {
	gz := strings.HasSuffix(path, ".gz")
	switch filepath.Ext(strings.TrimSuffix(path, ".gz")) {
	case ".json":
		return JSON, gz, nil
	case ".yaml", ".yml":
		return YAML, gz, nil
	case ".txt":
		return Dump, gz, nil
	}
	return "", gz, fmt.Errorf("whiskers: unknown table format for %q", path)
}

// Load reads the table at path and builds a tree with dims active axes.
func Load(path string, dims remy.Dims, opts ...remy.TreeOption) (*remy.WhiskerTree, error) {
	format, gz, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer warnonerror.Close(f, "Could not close "+path)
	var r io.Reader = f
	if gz {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer warnonerror.Close(zr, "Could not close gzip reader for "+path)
		r = zr
	}
	tree, err := Read(r, format, dims, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}

// Read decodes a table in the given format and builds its tree.
func Read(r io.Reader, format Format, dims remy.Dims, opts ...remy.TreeOption) (*remy.WhiskerTree, error) {
	t, err := Decode(r, format)
	if err != nil {
		return nil, err
	}
	return Build(t, dims, opts...)
}

// Decode decodes a table without building it.
func Decode(r io.Reader, format Format) (*Table, error) {
	t := &Table{}
	switch format {
	case JSON:
		if err := json.NewDecoder(r).Decode(t); err != nil {
			return nil, err
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(t); err != nil {
			return nil, err
		}
	case Dump:
		return nil, ErrDumpNotTable
	default:
		return nil, fmt.Errorf("whiskers: unknown format %q", format)
	}
	return t, nil
}

// Save writes the flat form of tree to path, in the format implied by its
// name.
func Save(path string, tree *remy.WhiskerTree) error {
	format, gz, err := FormatOf(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, format, gz, tree); err != nil {
		warnonerror.Close(f, "Could not close "+path)
		return err
	}
	return f.Close()
}

func write(w io.Writer, format Format, gz bool, tree *remy.WhiskerTree) error {
	if !gz {
		return Write(w, format, tree)
	}
	zw := gzip.NewWriter(w)
	if err := Write(zw, format, tree); err != nil {
		return err
	}
	return zw.Close()
}

// Write encodes tree in the given format.
func Write(w io.Writer, format Format, tree *remy.WhiskerTree) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(FromTree(tree))
	case YAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(FromTree(tree)); err != nil {
			return err
		}
		return enc.Close()
	case Dump:
		return WriteDump(w, tree)
	}
	return fmt.Errorf("whiskers: unknown format %q", format)
}
