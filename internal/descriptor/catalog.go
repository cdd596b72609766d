package descriptor

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/*.yaml
var builtinFS embed.FS

// InfoSuffix turns a resource name into its read-only task name
const InfoSuffix = "_info"

// Mode is the path a task is routed to
type Mode string

const (
	ModeReconcile Mode = "reconcile"
	ModeRead      Mode = "read"
)

type functionRef struct {
	descriptor *Descriptor
	kind       string
}

// Catalog indexes descriptors by resource name and by (family, function).
type Catalog struct {
	byName     map[string]*Descriptor
	byFunction map[string]functionRef
}

// NewCatalog returns an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		byName:     make(map[string]*Descriptor),
		byFunction: make(map[string]functionRef),
	}
}

// Builtin loads the catalog embedded in the binary
func Builtin() (*Catalog, error) {
	c := NewCatalog()
	if err := c.LoadFS(builtinFS, "catalog"); err != nil {
		return nil, fmt.Errorf("failed to load builtin catalog: %w", err)
	}
	return c, nil
}

// MustBuiltin is Builtin for callers that cannot recover from a broken binary
func MustBuiltin() *Catalog {
	c, err := Builtin()
	if err != nil {
		panic(err)
	}
	return c
}

func functionKey(family, function string) string {
	return family + "/" + function
}

// Register validates d and adds it to the catalog. A later descriptor with
// the same name replaces the earlier one.
func (c *Catalog) Register(d *Descriptor) error {
	if err := Validate(d); err != nil {
		return err
	}
	if old, ok := c.byName[d.Name]; ok {
		for key, ref := range c.byFunction {
			if ref.descriptor == old {
				delete(c.byFunction, key)
			}
		}
	}
	c.byName[d.Name] = d
	for kind, op := range d.Operations {
		c.byFunction[functionKey(d.Family, op.Function)] = functionRef{descriptor: d, kind: kind}
		for _, v := range op.Variants {
			if v.Function != "" {
				c.byFunction[functionKey(d.Family, v.Function)] = functionRef{descriptor: d, kind: kind}
			}
		}
	}
	return nil
}

// Get returns the descriptor for a resource name
func (c *Catalog) Get(name string) (*Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Lookup routes a task name to its descriptor. "<name>" reconciles the
// resource and "<name>_info" reads it.
func (c *Catalog) Lookup(task string) (*Descriptor, Mode, error) {
	if d, ok := c.byName[task]; ok {
		if d.IsReadOnly() {
			return d, ModeRead, nil
		}
		return d, ModeReconcile, nil
	}
	if base, ok := strings.CutSuffix(task, InfoSuffix); ok {
		if d, ok := c.byName[base]; ok {
			return d, ModeRead, nil
		}
	}
	return nil, "", fmt.Errorf("unknown task %q", task)
}

// Resolve maps (family, function) to its descriptor and operation
func (c *Catalog) Resolve(family, function string) (*Descriptor, *Operation, error) {
	ref, ok := c.byFunction[functionKey(family, function)]
	if !ok {
		return nil, nil, fmt.Errorf("no operation %q in family %q", function, family)
	}
	return ref.descriptor, ref.descriptor.Operations[ref.kind], nil
}

// Names returns all resource names in lexical order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFS registers every *.yaml descriptor under dir of fsys
func (c *Catalog) LoadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		p := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read descriptor %s: %w", p, err)
		}
		d, err := Parse(data)
		if err != nil {
			return fmt.Errorf("descriptor %s: %w", p, err)
		}
		if err := c.Register(d); err != nil {
			return fmt.Errorf("descriptor %s: %w", p, err)
		}
	}
	return nil
}

// LoadDir registers every *.yaml descriptor in a directory on disk
func (c *Catalog) LoadDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve catalog directory %q: %w", dir, err)
	}
	return c.LoadFS(os.DirFS(abs), ".")
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Parse decodes one descriptor document. Unknown keys are rejected.
func Parse(data []byte) (*Descriptor, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var d Descriptor
	if err := decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor YAML: %w", err)
	}
	return &d, nil
}
