package catalog

import (
	"errors"
	"fmt"
	"os"

	"modelgate/internal/model"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	ErrNegativeCost   = errors.New("catalog: model cost must be non-negative")
	ErrDuplicateModel = errors.New("catalog: duplicate model name")
	ErrUnknownPlan    = errors.New("catalog: unknown plan tier")
)

// TierPatterns 策略使用的模型名模式表
type TierPatterns struct {
	Fast        []string `yaml:"fast"`
	HighQuality []string `yaml:"high_quality"`
	Balanced    []string `yaml:"balanced"`
}

// Multiplier is a declarative contextual bonus: when the task matches and the
// model carries Tag, the score is multiplied by Factor.
type Multiplier struct {
	TaskTypes    []model.TaskType   `yaml:"task_types"`
	Complexities []model.Complexity `yaml:"complexities"`
	Tag          string             `yaml:"tag"`
	Factor       float64            `yaml:"factor"`
}

// Applies reports whether the rule matches the task context.
func (m Multiplier) Applies(tc model.TaskContext) bool {
	if len(m.TaskTypes) > 0 && !containsTask(m.TaskTypes, tc.Type) {
		return false
	}
	if len(m.Complexities) > 0 && !containsComplexity(m.Complexities, tc.Complexity) {
		return false
	}
	return len(m.TaskTypes) > 0 || len(m.Complexities) > 0
}

// ClassifierRules 任务分类规则
type ClassifierRules struct {
	Keywords map[model.TaskType][]string `yaml:"keywords"`
	// length / keyword-count thresholds for the moderate and complex tiers
	ModerateLength   int `yaml:"moderate_length"`
	ComplexLength    int `yaml:"complex_length"`
	ModerateKeywords int `yaml:"moderate_keywords"`
	ComplexKeywords  int `yaml:"complex_keywords"`
	// messages shorter than this prefer fast models under auto routing
	ShortMessageLength int `yaml:"short_message_length"`
}

// Catalog 静态参考数据：模型、套餐与规则表
type Catalog struct {
	Models      []model.ModelDescriptor `yaml:"models"`
	Plans       []model.Plan            `yaml:"plans"`
	Tiers       TierPatterns            `yaml:"tiers"`
	Classifier  ClassifierRules         `yaml:"classifier"`
	Multipliers []Multiplier            `yaml:"multipliers"`
}

// Load 从 YAML 文件加载目录，文件不存在时使用内置目录
// Sections missing from the file keep their builtin values.
func Load(path string) (*Catalog, error) {
	cat := Default()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("catalog: %s not found, using builtin catalog", path)
		return cat, nil
	}
	if err != nil {
		return nil, err
	}

	var file Catalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	cat.merge(&file)

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	log.Infof("catalog: loaded %d models and %d plans from %s", len(cat.Models), len(cat.Plans), path)
	return cat, nil
}

func (c *Catalog) merge(o *Catalog) {
	if len(o.Models) > 0 {
		c.Models = o.Models
	}
	if len(o.Plans) > 0 {
		c.Plans = o.Plans
	}
	if len(o.Tiers.Fast) > 0 {
		c.Tiers.Fast = o.Tiers.Fast
	}
	if len(o.Tiers.HighQuality) > 0 {
		c.Tiers.HighQuality = o.Tiers.HighQuality
	}
	if len(o.Tiers.Balanced) > 0 {
		c.Tiers.Balanced = o.Tiers.Balanced
	}
	if len(o.Classifier.Keywords) > 0 {
		c.Classifier.Keywords = o.Classifier.Keywords
	}
	if o.Classifier.ModerateLength > 0 {
		c.Classifier.ModerateLength = o.Classifier.ModerateLength
	}
	if o.Classifier.ComplexLength > 0 {
		c.Classifier.ComplexLength = o.Classifier.ComplexLength
	}
	if o.Classifier.ModerateKeywords > 0 {
		c.Classifier.ModerateKeywords = o.Classifier.ModerateKeywords
	}
	if o.Classifier.ComplexKeywords > 0 {
		c.Classifier.ComplexKeywords = o.Classifier.ComplexKeywords
	}
	if o.Classifier.ShortMessageLength > 0 {
		c.Classifier.ShortMessageLength = o.Classifier.ShortMessageLength
	}
	if len(o.Multipliers) > 0 {
		c.Multipliers = o.Multipliers
	}
}

// Validate checks invariants of the reference data.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.InputCostPer1K < 0 || m.OutputCostPer1K < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeCost, m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// Registry returns the model registry view of the catalog.
func (c *Catalog) Registry() *Registry {
	return NewRegistry(c.Models)
}

// Plan 按等级查找套餐
func (c *Catalog) Plan(tier model.PlanTier) (model.Plan, error) {
	for _, p := range c.Plans {
		if p.Tier == tier {
			return p, nil
		}
	}
	return model.Plan{}, fmt.Errorf("%w: %s", ErrUnknownPlan, tier)
}

// PlanAllows reports whether modelName is on the plan's allow-list.
func PlanAllows(plan model.Plan, modelName string) bool {
	for _, pattern := range plan.AllowedModels {
		if MatchPattern(pattern, modelName) {
			return true
		}
	}
	return false
}

func containsTask(list []model.TaskType, t model.TaskType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsComplexity(list []model.Complexity, c model.Complexity) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}
