// Package catalog holds the derivation paths the application tracks for every
// device. Paths are global: they are not tied to a device identity.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Path types.
const (
	TypeXpub    = "xpub"
	TypeAddress = "address"
)

// XpubSuffix marks a cached entry as an account xpub rather than a leaf
// address at the same path.
const XpubSuffix = "_xpub"

//go:embed paths.yaml
var defaultYAML []byte

// Path is one coin/script-type combination to keep cached.
type Path struct {
	Note                 string   `json:"note"`
	ScriptType           string   `json:"script_type"`
	PathType             string   `json:"type"`
	Curve                string   `json:"curve"`
	AddressNList         []uint32 `json:"address_n_list"`
	AddressNListMaster   []uint32 `json:"address_n_list_master"`
	Networks             []string `json:"networks"`
	AvailableScriptTypes []string `json:"available_script_types,omitempty"`
}

// XpubScriptType returns the script-type key the account xpub is cached under.
func (p Path) XpubScriptType() string {
	return p.ScriptType + XpubSuffix
}

// Serves reports whether the path lists networkID.
func (p Path) Serves(networkID string) bool {
	return slices.Contains(p.Networks, networkID)
}

// Validate checks that p can be stored and derived from.
func (p Path) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Note) == "" {
		problems = append(problems, "note is required")
	}
	if p.ScriptType == "" {
		problems = append(problems, "script_type is required")
	}
	if len(p.AddressNList) == 0 {
		problems = append(problems, "address_n_list is required")
	}
	if len(p.Networks) == 0 {
		problems = append(problems, "at least one network is required")
	}
	for _, n := range p.Networks {
		if chain.Classify(n) == chain.FamilyUnsupported {
			problems = append(problems, fmt.Sprintf("network %q has an unknown namespace", n))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
		"note":     p.Note,
		"problems": strings.Join(problems, "; "),
	})
}

// yamlPath is the on-disk form, with paths written in "m/44'/0'/0'" notation.
type yamlPath struct {
	Note                 string   `yaml:"note"`
	ScriptType           string   `yaml:"script_type"`
	Type                 string   `yaml:"type"`
	Curve                string   `yaml:"curve"`
	Account              string   `yaml:"account"`
	Master               string   `yaml:"master"`
	Networks             []string `yaml:"networks"`
	AvailableScriptTypes []string `yaml:"available_script_types"`
}

type yamlFile struct {
	Paths []yamlPath `yaml:"paths"`
}

// Parse decodes a YAML catalog. Every entry is validated and notes must be
// unique.
func Parse(data []byte) ([]Path, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, kkerr.WithCause(kkerr.ErrValidation, err)
	}

	seen := make(map[string]bool, len(f.Paths))
	paths := make([]Path, 0, len(f.Paths))
	for _, raw := range f.Paths {
		p, err := raw.toPath()
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Note] {
			return nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"note":     p.Note,
				"problems": "duplicate note",
			})
		}
		seen[p.Note] = true
		paths = append(paths, p)
	}
	return paths, nil
}

func (y yamlPath) toPath() (Path, error) {
	p := Path{
		Note:                 y.Note,
		ScriptType:           y.ScriptType,
		PathType:             y.Type,
		Curve:                y.Curve,
		Networks:             y.Networks,
		AvailableScriptTypes: y.AvailableScriptTypes,
	}
	if p.PathType == "" {
		p.PathType = TypeAddress
	}
	if p.Curve == "" {
		p.Curve = "secp256k1"
	}
	var err error
	if y.Account != "" {
		if p.AddressNList, err = device.ParsePath(y.Account); err != nil {
			return Path{}, kkerr.Wrap(err, "path %q: account", y.Note)
		}
	}
	if y.Master != "" {
		if p.AddressNListMaster, err = device.ParsePath(y.Master); err != nil {
			return Path{}, kkerr.Wrap(err, "path %q: master", y.Note)
		}
	}
	return p, nil
}

//nolint:gochecknoglobals // parsed once from the embedded file
var loadDefault = sync.OnceValues(func() ([]Path, error) {
	return Parse(defaultYAML)
})

// Default returns a copy of the built-in catalog.
func Default() []Path {
	paths, err := loadDefault()
	if err != nil {
		// The embedded file is covered by tests.
		panic(fmt.Sprintf("catalog: embedded paths are invalid: %v", err))
	}
	out := make([]Path, len(paths))
	for i, p := range paths {
		p.AddressNList = slices.Clone(p.AddressNList)
		p.AddressNListMaster = slices.Clone(p.AddressNListMaster)
		p.Networks = slices.Clone(p.Networks)
		p.AvailableScriptTypes = slices.Clone(p.AvailableScriptTypes)
		out[i] = p
	}
	return out
}
