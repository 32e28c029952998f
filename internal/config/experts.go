package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExpertsFile is the parsed experts YAML file. It centralizes the tuning
// knobs that would otherwise be scattered as per-expert literals: the
// global execution threshold and each expert's trigger phrases, keyword
// sets, and score levels.
type ExpertsFile struct {
	// Threshold is the minimum winning confidence required for an expert
	// to execute instead of falling through to the LLM path.
	Threshold float64 `yaml:"threshold"`

	// Experts maps expert name to its tuning block. An expert missing
	// from the file runs with its built-in defaults.
	Experts map[string]ExpertTuning `yaml:"experts"`
}

// ExpertTuning holds the per-expert confidence tuning block.
type ExpertTuning struct {
	// Triggers are explicit phrases that yield TriggerScore when present.
	Triggers []string `yaml:"triggers"`

	// Keywords are looser topic words that yield KeywordScore.
	Keywords []string `yaml:"keywords"`

	// TriggerScore is the confidence for a trigger-phrase hit
	// (default 0.9).
	TriggerScore float64 `yaml:"trigger_score"`

	// KeywordScore is the confidence for a keyword-only hit
	// (default 0.4).
	KeywordScore float64 `yaml:"keyword_score"`
}

// defaultThreshold matches the observed product convention: a winner must
// be at least an even-odds match before it may act.
const defaultThreshold = 0.55

// LoadExpertsFile reads and validates the experts YAML file at path.
// A missing file is not an error: the built-in defaults apply and only
// the threshold is set. A present but malformed file is fatal, since a
// half-applied tuning file is worse than none.
func LoadExpertsFile(path string) (*ExpertsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ExpertsFile{Threshold: defaultThreshold}, nil
		}
		return nil, fmt.Errorf("config: failed to read experts file %s: %w", path, err)
	}

	var ef ExpertsFile
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return nil, fmt.Errorf("config: failed to parse experts file %s: %w", path, err)
	}

	if ef.Threshold == 0 {
		ef.Threshold = defaultThreshold
	}
	if ef.Threshold < 0 || ef.Threshold > 1 {
		return nil, fmt.Errorf("config: experts threshold must be in [0,1], got %.2f", ef.Threshold)
	}
	for name, tuning := range ef.Experts {
		if tuning.TriggerScore < 0 || tuning.TriggerScore > 1 {
			return nil, fmt.Errorf("config: expert %q trigger_score out of [0,1]", name)
		}
		if tuning.KeywordScore < 0 || tuning.KeywordScore > 1 {
			return nil, fmt.Errorf("config: expert %q keyword_score out of [0,1]", name)
		}
	}

	return &ef, nil
}

// Tuning returns the tuning block for the named expert, or a zero block
// when the file has none. Callers apply their own defaults on zero scores.
func (f *ExpertsFile) Tuning(name string) ExpertTuning {
	if f == nil || f.Experts == nil {
		return ExpertTuning{}
	}
	return f.Experts[name]
}
