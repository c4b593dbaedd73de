// Package eval runs a YAML suite of prompts through the agent and scores the
// answers with deterministic checks.
package eval

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/notewright/answerformat"
)

// DefaultCasesPath is where the CLI looks for the suite when --cases is unset.
const DefaultCasesPath = "eval/cases.yaml"

// DefaultTargetPassRate applies when the suite omits target_pass_rate.
const DefaultTargetPassRate = 0.80

// Suite is a parsed and validated evaluation suite.
type Suite struct {
	TargetPassRate float64 `yaml:"target_pass_rate"`
	Cases          []Case  `yaml:"cases"`
}

// Case is a single prompt with the expectations its answer must meet.
type Case struct {
	ID                   string              `yaml:"id"`
	Prompt               string              `yaml:"prompt"`
	RequiredTools        []string            `yaml:"required_tools"`
	AnswerFormat         answerformat.Format `yaml:"answer_format"`
	AnswerMustContain    []string            `yaml:"answer_must_contain"`
	AnswerMustNotContain []string            `yaml:"answer_must_not_contain"`
	NoInventedToolOutput bool                `yaml:"no_invented_tool_output"`
}

// LoadSuite reads path and validates it against the known tool names.
func LoadSuite(path string, knownTools []string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read eval cases file %q: %w", path, err)
	}
	suite, err := ParseSuite(data, knownTools)
	if err != nil {
		return nil, fmt.Errorf("failed to parse eval cases file %q: %w", path, err)
	}
	return suite, nil
}

// ParseSuite decodes a YAML suite, rejecting unknown fields, then normalizes
// and validates it.
func ParseSuite(data []byte, knownTools []string) (*Suite, error) {
	suite := &Suite{TargetPassRate: DefaultTargetPassRate}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(suite); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := suite.normalize(knownTools); err != nil {
		return nil, err
	}
	return suite, nil
}

func (s *Suite) normalize(knownTools []string) error {
	if s.TargetPassRate < 0 || s.TargetPassRate > 1 {
		return errors.New("target_pass_rate must be between 0.0 and 1.0")
	}
	if len(s.Cases) == 0 {
		return errors.New("eval suite must contain at least one case")
	}

	seen := make(map[string]struct{}, len(s.Cases))
	for i := range s.Cases {
		c := &s.Cases[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Prompt = strings.TrimSpace(c.Prompt)
		if c.ID == "" {
			return errors.New("case id cannot be empty")
		}
		if c.Prompt == "" {
			return fmt.Errorf("case %q: prompt cannot be empty", c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate case id %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		tools := make([]string, 0, len(c.RequiredTools))
		for _, name := range c.RequiredTools {
			if name = strings.TrimSpace(name); name != "" {
				tools = append(tools, name)
			}
		}
		slices.Sort(tools)
		c.RequiredTools = slices.Compact(tools)

		for _, name := range c.RequiredTools {
			if !slices.Contains(knownTools, name) {
				return fmt.Errorf("case %q references unknown required tool %q", c.ID, name)
			}
		}
	}
	return nil
}
