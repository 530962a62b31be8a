package builder

import (
	"github.com/ghodss/yaml"

	"github.com/notargets/gohgrid/hgrid"
	"github.com/notargets/gohgrid/validate"
)

// Options configures a staged build. The YAML tags let orchestration
// layers keep build parameters in the same input files as the rest of a
// model run.
type Options struct {
	// Strict promotes advisory topology issues to build failures.
	Strict bool `yaml:"Strict"`
	// Precision is the fractional digit count the codec writes with.
	Precision int `yaml:"Precision"`
	// SourceCRS overrides the CRS carried in the hgrid name line.
	SourceCRS string `yaml:"SourceCRS"`
	// TargetCRS, when set, reprojects the mesh after finalize.
	TargetCRS string `yaml:"TargetCRS"`
	// DuplicateTolerance and SuspectThreshold tune the validator; zero
	// values take the validator defaults.
	DuplicateTolerance float64 `yaml:"DuplicateTolerance"`
	SuspectThreshold   float64 `yaml:"SuspectThreshold"`
}

// Parse reads options from YAML (or JSON, which is valid YAML).
func (o *Options) Parse(data []byte) error {
	return yaml.Unmarshal(data, o)
}

func (o Options) withDefaults() Options {
	if o.Precision <= 0 {
		o.Precision = hgrid.DefaultPrecision
	}
	def := validate.DefaultOptions()
	if o.DuplicateTolerance <= 0 {
		o.DuplicateTolerance = def.DuplicateTolerance
	}
	if o.SuspectThreshold <= 0 {
		o.SuspectThreshold = def.SuspectThreshold
	}
	return o
}
