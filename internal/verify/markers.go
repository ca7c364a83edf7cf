package verify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// markerFile is the on-disk format for operator-supplied markers.
// Example:
//
//	wrf:
//	  failure:
//	    - "Flerchinger USEd in NEW version"
//	  success: []
//	real:
//	  failure:
//	    - "mismatch in dimensions"
type markerFile map[string]struct {
	Failure []string `yaml:"failure"`
	Success []string `yaml:"success"`
}

// LoadMarkers merges extra markers from a YAML file into the ruleset.
// A missing file is not an error so configs can point at an optional
// site-local marker list.
func (rs *Ruleset) LoadMarkers(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading markers file: %w", err)
	}

	var mf markerFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parsing markers file %s: %w", path, err)
	}

	for kind, entry := range mf {
		rs.Register(StageKind(kind), Rules{
			Failure: entry.Failure,
			Success: entry.Success,
		})
	}

	return nil
}
