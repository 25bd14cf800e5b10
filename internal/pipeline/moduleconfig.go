package pipeline

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ModulesConfig tunes the built-in stage set. Stages absent from the file
// run with defaults; the file never changes execution order.
//
//	modules:
//	  posting_cadence:
//	    min_days: 7
//	  hashtag_performance:
//	    enabled: false
type ModulesConfig struct {
	Modules map[string]ModuleSettings `yaml:"modules"`
}

// ModuleSettings holds per-stage options. Unset fields keep the stage
// defaults.
type ModuleSettings struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	TopK    int   `yaml:"top_k,omitempty"`
	MinDays int   `yaml:"min_days,omitempty"`
}

func (s ModuleSettings) enabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LoadModulesConfig reads stage settings from a YAML file.
func LoadModulesConfig(path string) (*ModulesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read modules config %s", path)
	}

	var cfg ModulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse modules config")
	}
	return &cfg, nil
}
