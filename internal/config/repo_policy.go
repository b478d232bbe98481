package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RepoPolicyFile is the well-known policy file name at a repository's root.
const RepoPolicyFile = ".reviewflow.yml"

var (
	ErrPolicyNotFound = errors.New("policy file not found")
	ErrPolicyParsing  = errors.New("policy parsing failed")
)

// RepoPolicy is the per-repository review policy loaded from .reviewflow.yml.
// It extends the globally configured exclusion patterns.
type RepoPolicy struct {
	// Exclude lists glob patterns for generated or vendored paths that never
	// produce review chunks.
	Exclude []string `yaml:"exclude"`
	// FileLevelFallback overrides the global fallback setting when non-nil.
	FileLevelFallback *bool `yaml:"file_level_fallback"`
}

// DefaultRepoPolicy returns the policy used when a repository ships none.
func DefaultRepoPolicy() *RepoPolicy {
	return &RepoPolicy{}
}

// ParseRepoPolicy parses policy file contents, whether read from disk or
// fetched from the repository at a specific commit.
func ParseRepoPolicy(data []byte) (*RepoPolicy, error) {
	policy := DefaultRepoPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicyParsing, err)
	}
	return policy, nil
}

// LoadRepoPolicy loads and parses the .reviewflow.yml file from a directory.
func LoadRepoPolicy(dir string) (*RepoPolicy, error) {
	policyPath := filepath.Join(dir, RepoPolicyFile)
	data, err := os.ReadFile(policyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRepoPolicy(), ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", RepoPolicyFile, err)
	}
	return ParseRepoPolicy(data)
}
