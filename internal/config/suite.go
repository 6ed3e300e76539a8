package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

// ClassEntry selects one test class and optionally overrides its declared
// report configuration and test metadata.
type ClassEntry struct {
	Name           string                              `yaml:"name" toml:"name"`
	Mode           string                              `yaml:"mode" toml:"mode"`
	WelcomeMessage string                              `yaml:"welcome_message" toml:"welcome_message"`
	Identifier     *int                                `yaml:"identifier" toml:"identifier"`
	Tests          map[string]models.GradeableOverride `yaml:"tests" toml:"tests"`
}

// SuiteDoc is the suite configuration document: the classes to run, in order.
type SuiteDoc struct {
	Classes []ClassEntry `yaml:"classes" toml:"classes"`
}

// LoadSuite reads a suite document. Files ending in .toml are TOML, anything
// else is YAML.
func LoadSuite(path string) (*SuiteDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ConfigurationError, "could not read suite file %s", path)
	}
	doc := &SuiteDoc{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, doc)
	} else {
		err = yaml.Unmarshal(data, doc)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ConfigurationError, "could not parse suite file %s", path)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *SuiteDoc) validate() error {
	seen := make(map[string]bool, len(d.Classes))
	for _, c := range d.Classes {
		if c.Name == "" {
			return pkgerrors.Newf(pkgerrors.ConfigurationError, "suite file lists a class without a name")
		}
		if seen[c.Name] {
			return pkgerrors.Newf(pkgerrors.ConfigurationError, "class %s listed twice", c.Name)
		}
		seen[c.Name] = true
		if _, ok := models.ParseReportMode(c.Mode); !ok {
			return pkgerrors.Newf(pkgerrors.ConfigurationError, "class %s: unknown report mode %q", c.Name, c.Mode)
		}
		if c.Identifier != nil && *c.Identifier < models.NoIdentifier {
			return pkgerrors.Newf(pkgerrors.ConfigurationError, "class %s: invalid identifier %d", c.Name, *c.Identifier)
		}
		for test, g := range c.Tests {
			if g.Weight != nil && *g.Weight < 0 {
				return pkgerrors.Newf(pkgerrors.ConfigurationError, "class %s: test %s has negative weight", c.Name, test)
			}
		}
	}
	return nil
}

// Apply overlays the entry on a class's declared configuration.
func (c ClassEntry) Apply(declared models.ContextConfig) models.ContextConfig {
	if c.Mode != "" {
		declared.Mode, _ = models.ParseReportMode(c.Mode)
	}
	if c.WelcomeMessage != "" {
		declared.WelcomeMessage = c.WelcomeMessage
	}
	if c.Identifier != nil {
		declared.Identifier = *c.Identifier
	}
	return declared
}
