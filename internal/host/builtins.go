package host

import (
	"encoding/json"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the host tool's version, exposed as the lattice.Version artifact.
const Version = "0.3.0"

// RegisterBuiltins installs the artifacts the host itself ships with.
func RegisterBuiltins(reg *Registry) {
	reg.MustRegister("lattice.Version", func() (any, error) { return Version, nil })
	reg.MustRegister("runtime.Version", func() (any, error) { return runtime.Version(), nil })
	reg.MustRegister("encoding.json.Marshal", func() (any, error) { return json.Marshal, nil })
	reg.MustRegister("encoding.json.Unmarshal", func() (any, error) { return json.Unmarshal, nil })
	reg.MustRegister("yaml.Marshal", func() (any, error) { return yaml.Marshal, nil })
	reg.MustRegister("yaml.Unmarshal", func() (any, error) { return yaml.Unmarshal, nil })
	reg.MustRegister("lattice.text.Upper", func() (any, error) { return strings.ToUpper, nil })
	reg.MustRegister("lattice.text.Lower", func() (any, error) { return strings.ToLower, nil })
}

// NewHost returns the host's two-level chain: a core registry holding the
// builtins and an application registry below it for the tool's own artifacts.
func NewHost() (core, app *Registry) {
	core = NewRegistry("host:core", nil)
	RegisterBuiltins(core)
	app = NewRegistry("host:app", core)
	return core, app
}
