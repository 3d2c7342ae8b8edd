// Package fsf renders the FEAT design-file (.fsf) fragments. The fragments
// live as static Tcl templates with ${name} placeholders; callers only ever
// see the Renderer interface.
package fsf

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed templates/*.tcl
var templateFS embed.FS

// Template names of the catalog.
const (
	HeaderL1            = "header_l1"
	EVHRF               = "ev_hrf"
	EVNone              = "ev_none"
	EVOrtho             = "ev_ortho"
	ContrastHeader      = "contrast_header"
	ContrastProlog      = "contrast_prolog"
	ContrastElement     = "contrast_element"
	ContrastFTest       = "contrast_ftest"
	ContrastMaskHeader  = "contrastmask_header"
	ContrastMaskElement = "contrastmask_element"
	ContrastMaskFooter  = "contrastmask_footer"
	NonGUI              = "nongui"

	FEHeader    = "fe_header"
	FECopes     = "fe_copes"
	FEFeatDirs  = "fe_featdirs"
	FEEVHeader  = "fe_ev_header"
	FEEVElement = "fe_ev_element"
	FEFooter    = "fe_footer"
	RegHeader   = "reg_header"
)

// Params are the placeholder values of one rendering.
type Params map[string]any

// Renderer fills the named template with params.
type Renderer interface {
	Render(name string, params Params) (string, error)
}

// Catalog is a Renderer over a fixed set of templates.
type Catalog struct {
	templates map[string]string
}

// Default returns the catalog of embedded FEAT templates.
func Default() *Catalog {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		panic(err)
	}
	c := &Catalog{templates: make(map[string]string, len(entries))}
	for _, e := range entries {
		raw, err := templateFS.ReadFile(path.Join("templates", e.Name()))
		if err != nil {
			panic(err)
		}
		c.templates[strings.TrimSuffix(e.Name(), ".tcl")] = string(raw)
	}
	return c
}

// NewCatalog builds a catalog from in-memory templates.
func NewCatalog(templates map[string]string) *Catalog {
	c := &Catalog{templates: make(map[string]string, len(templates))}
	for k, v := range templates {
		c.templates[k] = v
	}
	return c
}

// Names lists the templates of the catalog in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for k := range c.templates {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Render substitutes every ${name} of the template. A placeholder without a
// value is an error; extra params are ignored.
func (c *Catalog) Render(name string, params Params) (string, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("[fsf] unknown template %q", name)
	}

	var missing []string
	out := os.Expand(tmpl, func(key string) string {
		v, ok := params[key]
		if !ok {
			missing = append(missing, key)
			return ""
		}
		return FormatValue(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("[fsf] template %q: no value for %s", name, strings.Join(missing, ", "))
	}
	return out, nil
}

// FormatValue prints a placeholder value the way FEAT expects it: floats
// always carry a decimal point, booleans are 0/1.
func FormatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return FormatFloat(x)
	case float32:
		return FormatFloat(float64(x))
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// FormatFloat prints f in its shortest form with at least one decimal.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.ContainsAny(s, ".nN") {
		return s
	}
	return s + ".0"
}
