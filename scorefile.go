package tabstep

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseScore decodes a score from .json or .yml contents, links its ties and
// validates it.
func ParseScore(data []byte) (*Score, error) {
	var score Score
	if errJSON := json.Unmarshal(data, &score); errJSON != nil {
		score = Score{}
		if errYaml := yaml.Unmarshal(data, &score); errYaml != nil {
			return nil, errors.Errorf("the score could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	score.LinkTies()
	if err := score.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid score")
	}
	return &score, nil
}

// LoadScore reads and parses a score file.
func LoadScore(filename string) (*Score, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read file %v", filename)
	}
	score, err := ParseScore(data)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load score %v", filename)
	}
	return score, nil
}

// MarshalSteps encodes steps as YAML.
func MarshalSteps(steps []Step) ([]byte, error) {
	out, err := yaml.Marshal(steps)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal steps as yaml")
	}
	return out, nil
}
