// Package rules loads permission rules from a YAML file and keeps them
// current through a file watcher, so the evaluator never sees stale sets.
package rules

import (
	"fmt"
	"os"

	"github.com/stewardhq/steward/internal/permission"
	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk format:
//
//	allow:
//	  - get_tasks
//	  - add_comment
//	deny:
//	  - update_task(status=done)
type ruleFile struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// LoadFile reads the rule sets from path. A missing file yields an empty
// set, which denies everything.
func LoadFile(path string) (permission.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return permission.RuleSet{}, nil
		}
		return permission.RuleSet{}, err
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return permission.RuleSet{}, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	return permission.RuleSet{Allow: rf.Allow, Deny: rf.Deny}, nil
}
