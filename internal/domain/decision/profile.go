package decision

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadProfile reads a TOML calibration profile on top of DefaultPolicy.
// Keys absent from the file keep their defaults.
func LoadProfile(path string) (Policy, error) {
	p := DefaultPolicy()
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Policy{}, fmt.Errorf("decode profile %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownProfileKey, strings.Join(keys, ", "))
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
