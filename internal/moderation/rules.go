package moderation

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Rules is the pluggable policy data of the classifier.
type Rules struct {
	BannedWords    []string `yaml:"banned_words"`
	AllowedDomains []string `yaml:"allowed_domains"`
}

// LoadRules returns base overridden by the lists present in the YAML file at path.
// An empty path returns base unchanged.
func LoadRules(path string, base Rules) (Rules, error) {
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrap(err, "read rules file")
	}
	return ParseRules(raw, base)
}

func ParseRules(raw []byte, base Rules) (Rules, error) {
	var fromFile Rules
	if err := yaml.UnmarshalStrict(raw, &fromFile); err != nil {
		return base, errors.Wrap(err, "parse rules file")
	}
	if fromFile.BannedWords != nil {
		base.BannedWords = fromFile.BannedWords
	}
	if fromFile.AllowedDomains != nil {
		base.AllowedDomains = fromFile.AllowedDomains
	}
	return base, nil
}
