// Package seed provides the default question pool and the demo population.
//
// Both live in embedded YAML files so they can be edited without touching Go
// code; they are parsed once per call with gopkg.in/yaml.v3.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/sakif/people-match/internal/service"
)

//go:embed questions.yaml
var questionsYAML []byte

//go:embed demo.yaml
var demoYAML []byte

// DemoPerson is one demo user with answers and preferences.
type DemoPerson struct {
	Name            string            `yaml:"name"`
	ProfileImageURL string            `yaml:"profile_image_url"`
	Details         map[string]string `yaml:"details"`
	Answers         map[string]bool   `yaml:"answers"`
	Preferences     map[string]bool   `yaml:"preferences"`
}

// DefaultQuestions returns the default pool in order.
func DefaultQuestions() ([]string, error) {
	var doc struct {
		Questions []string `yaml:"questions"`
	}
	if err := yaml.Unmarshal(questionsYAML, &doc); err != nil {
		return nil, fmt.Errorf("seed: parsing questions.yaml: %w", err)
	}
	return doc.Questions, nil
}

// Demo returns the demo people in file order.
func Demo() ([]DemoPerson, error) {
	var doc struct {
		People []DemoPerson `yaml:"people"`
	}
	if err := yaml.Unmarshal(demoYAML, &doc); err != nil {
		return nil, fmt.Errorf("seed: parsing demo.yaml: %w", err)
	}
	return doc.People, nil
}

// ApplyDemo registers every demo person that is not registered yet and
// records their answers and preferences through the engine, so the journal
// persists them like any other user. People who already exist are left
// alone; restarting the server never resets what they changed.
func ApplyDemo(ctx context.Context, e *service.Engine) (added int, err error) {
	people, err := Demo()
	if err != nil {
		return 0, err
	}

	for _, p := range people {
		if e.Registry.Exists(p.Name) {
			continue
		}
		u, err := e.Registry.Register(ctx, p.Name, p.ProfileImageURL, p.Details)
		if err != nil {
			return added, fmt.Errorf("seed: registering %q: %w", p.Name, err)
		}
		// Sorted keys keep pool insertion order stable for questions that
		// are not in the default pool.
		for _, q := range slices.Sorted(maps.Keys(p.Answers)) {
			if err := e.Questions.RecordAnswer(ctx, u, q, p.Answers[q]); err != nil {
				return added, fmt.Errorf("seed: answering for %q: %w", p.Name, err)
			}
		}
		for _, q := range slices.Sorted(maps.Keys(p.Preferences)) {
			if err := e.Questions.DeclarePreference(ctx, u, q, p.Preferences[q]); err != nil {
				return added, fmt.Errorf("seed: preference for %q: %w", p.Name, err)
			}
		}
		added++
	}
	return added, nil
}
