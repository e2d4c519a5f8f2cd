package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daimoniac/aaalint/internal/errors"
	"github.com/daimoniac/aaalint/internal/types"
)

// ParseLintfile reads and parses an aaalint.yml configuration file
func ParseLintfile(path string) (*LintConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewTransientf("failed to read lintfile: %w", err)
	}

	var config LintConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewPermanentf("failed to parse lintfile YAML: %w", err)
	}

	return &config, nil
}

// GetSuite returns the suite entry with the given name, or nil
func (c *LintConfig) GetSuite(name string) *SuiteEntry {
	for i := range c.Suites {
		if c.Suites[i].Name == name {
			return &c.Suites[i]
		}
	}
	return nil
}

// GetSuiteNames returns the names of all configured suites
func (c *LintConfig) GetSuiteNames() []string {
	names := make([]string, 0, len(c.Suites))
	for _, suite := range c.Suites {
		names = append(names, suite.Name)
	}
	return names
}

// GetTolerationsForSuite returns issue tolerations for a suite, with defaults
// merged in. A suite-specific toleration for the same issue wins.
func (c *LintConfig) GetTolerationsForSuite(suite string) []types.IssueToleration {
	entry := c.GetSuite(suite)
	if entry == nil {
		return c.Defaults.Tolerate
	}
	return types.MergeTolerations(c.Defaults.Tolerate, entry.Tolerate)
}

// IsToleratedIssue checks if an issue type is tolerated for a specific suite.
// Returns true if the issue is tolerated and the toleration has not expired.
func (c *LintConfig) IsToleratedIssue(suite string, issue types.IssueType) (bool, *types.IssueToleration) {
	tolerations := c.GetTolerationsForSuite(suite)
	now := time.Now()

	for i := range tolerations {
		toleration := &tolerations[i]
		if toleration.Issue == string(issue) {
			if !toleration.Active(now) {
				return false, nil
			}
			return true, toleration
		}
	}

	return false, nil
}

// GetExpiringTolerations returns tolerations that will expire within the specified duration
func (c *LintConfig) GetExpiringTolerations(within time.Duration) []types.IssueToleration {
	var expiring []types.IssueToleration
	now := time.Now()
	threshold := now.Add(within)

	seen := func(list []types.IssueToleration) {
		for _, toleration := range list {
			if toleration.ExpiresAt != nil {
				if toleration.ExpiresAt.After(now) && toleration.ExpiresAt.Before(threshold) {
					expiring = append(expiring, toleration)
				}
			}
		}
	}

	seen(c.Defaults.Tolerate)
	for _, suite := range c.Suites {
		seen(suite.Tolerate)
	}

	return expiring
}

// GetReanalyzeInterval returns the reanalyze interval for a specific suite.
// Returns the suite's interval if specified, otherwise the default, otherwise 7d.
func (c *LintConfig) GetReanalyzeInterval(suite string) (time.Duration, error) {
	if entry := c.GetSuite(suite); entry != nil && entry.ReanalyzeInterval != "" {
		return parseInterval(entry.ReanalyzeInterval)
	}

	if c.Defaults.ReanalyzeInterval != "" {
		return parseInterval(c.Defaults.ReanalyzeInterval)
	}

	return 7 * 24 * time.Hour, nil
}

// GetPolicyForSuite returns the verdict policy for a specific suite.
// Returns the suite's policy if specified, otherwise the default, otherwise nil
// (caller should use the hardcoded default expression).
func (c *LintConfig) GetPolicyForSuite(suite string) *PolicyConfig {
	if entry := c.GetSuite(suite); entry != nil && entry.Policy != nil {
		return entry.Policy
	}

	return c.Defaults.Policy
}

// GetWatcherPollInterval returns the suite watcher poll interval from defaults.
// Returns the default if specified, otherwise 30 seconds.
func (c *LintConfig) GetWatcherPollInterval() (time.Duration, error) {
	if c.Defaults.WatcherPollInterval != "" {
		return parseInterval(c.Defaults.WatcherPollInterval)
	}

	return 30 * time.Second, nil
}
