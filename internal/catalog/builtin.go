package catalog

import "modelgate/internal/model"

// Default 内置目录（无配置文件时的种子数据）
// Costs are USD per 1K tokens.
func Default() *Catalog {
	return &Catalog{
		Models: []model.ModelDescriptor{
			{
				Name:            "gpt-4o-mini",
				Provider:        model.ProviderOpenAI,
				InputCostPer1K:  0.00015,
				OutputCostPer1K: 0.0006,
				Available:       true,
				Tags:            []string{model.TagFast, model.TagCheap},
				MaxOutputTokens: 16384,
			},
			{
				Name:            "claude-3-5-haiku",
				Provider:        model.ProviderAnthropic,
				InputCostPer1K:  0.0008,
				OutputCostPer1K: 0.004,
				Available:       true,
				Tags:            []string{model.TagFast, model.TagCheap},
				MaxOutputTokens: 8192,
			},
			{
				Name:            "gemini-2.0-flash",
				Provider:        model.ProviderGemini,
				InputCostPer1K:  0.0001,
				OutputCostPer1K: 0.0004,
				Available:       true,
				Tags:            []string{model.TagFast, model.TagCheap},
				MaxOutputTokens: 8192,
			},
			{
				Name:            "claude-sonnet-4",
				Provider:        model.ProviderAnthropic,
				InputCostPer1K:  0.003,
				OutputCostPer1K: 0.015,
				Available:       true,
				Tags:            []string{model.TagBalanced, model.TagCoding, model.TagCreative},
				MaxOutputTokens: 64000,
			},
			{
				Name:            "gpt-4.1",
				Provider:        model.ProviderOpenAI,
				InputCostPer1K:  0.002,
				OutputCostPer1K: 0.008,
				Available:       true,
				Tags:            []string{model.TagBalanced, model.TagCoding},
				MaxOutputTokens: 32768,
			},
			{
				Name:            "gpt-4o",
				Provider:        model.ProviderOpenAI,
				InputCostPer1K:  0.0025,
				OutputCostPer1K: 0.01,
				Available:       true,
				Tags:            []string{model.TagHighQuality, model.TagCoding, model.TagReasoning},
				MaxOutputTokens: 16384,
			},
			{
				Name:            "gemini-2.5-pro",
				Provider:        model.ProviderGemini,
				InputCostPer1K:  0.00125,
				OutputCostPer1K: 0.01,
				Available:       true,
				Tags:            []string{model.TagHighQuality, model.TagReasoning},
				MaxOutputTokens: 65536,
			},
			{
				Name:            "claude-opus-4",
				Provider:        model.ProviderAnthropic,
				InputCostPer1K:  0.015,
				OutputCostPer1K: 0.075,
				Available:       true,
				Tags:            []string{model.TagHighQuality, model.TagCreative, model.TagReasoning},
				MaxOutputTokens: 32000,
			},
		},
		Plans: []model.Plan{
			{
				Tier:                model.PlanFree,
				DailyCostLimitUSD:   1,
				RequestsPerMinute:   10,
				MonthlyRequestLimit: 1000,
				AllowedModels:       []string{"gpt-4o-mini", "claude-3-5-haiku", "gemini-2.0-flash"},
			},
			{
				Tier:                model.PlanStarter,
				DailyCostLimitUSD:   5,
				RequestsPerMinute:   30,
				MonthlyRequestLimit: 10000,
				AllowedModels:       []string{"gpt-4o-mini", "claude-3-5-haiku", "gemini-2.0-flash", "claude-sonnet-4", "gpt-4.1"},
			},
			{
				Tier:                model.PlanPro,
				DailyCostLimitUSD:   25,
				RequestsPerMinute:   60,
				MonthlyRequestLimit: 50000,
				AllowedModels:       []string{"*"},
			},
			{
				Tier:                model.PlanEnterprise,
				DailyCostLimitUSD:   200,
				RequestsPerMinute:   300,
				MonthlyRequestLimit: 1000000,
				AllowedModels:       []string{"*"},
			},
		},
		Tiers: TierPatterns{
			Fast:        []string{"*mini*", "*haiku*", "*flash*"},
			HighQuality: []string{"*opus*", "gpt-4o", "gemini-*-pro"},
			Balanced:    []string{"*sonnet*", "gpt-4.1*"},
		},
		Classifier: ClassifierRules{
			Keywords: map[model.TaskType][]string{
				model.TaskCoding: {
					"code", "function", "bug", "debug", "compile", "refactor", "python", "golang",
					"javascript", "typescript", "sql", "api", "class", "variable", "stack trace",
				},
				model.TaskWriting: {
					"write", "essay", "article", "email", "draft", "proofread", "rewrite",
					"paragraph", "blog", "summary", "letter",
				},
				model.TaskAnalysis: {
					"analyze", "analysis", "compare", "evaluate", "assess", "data", "trend",
					"statistics", "pros and cons", "insight", "metrics",
				},
				model.TaskCreative: {
					"story", "poem", "creative", "imagine", "fiction", "character", "plot",
					"song", "lyrics", "brainstorm",
				},
				model.TaskTranslation: {
					"translate", "translation", "in spanish", "in french", "in german",
					"in chinese", "in japanese", "language",
				},
				model.TaskTechnical: {
					"architecture", "infrastructure", "kubernetes", "database", "network",
					"protocol", "algorithm", "latency", "scalability", "deployment", "system design",
				},
			},
			ModerateLength:     200,
			ComplexLength:      800,
			ModerateKeywords:   2,
			ComplexKeywords:    4,
			ShortMessageLength: 100,
		},
		Multipliers: []Multiplier{
			{Complexities: []model.Complexity{model.ComplexityComplex}, Tag: model.TagHighQuality, Factor: 1.2},
			{TaskTypes: []model.TaskType{model.TaskCreative}, Tag: model.TagHighQuality, Factor: 1.1},
			{TaskTypes: []model.TaskType{model.TaskCreative}, Tag: model.TagCreative, Factor: 1.15},
			{TaskTypes: []model.TaskType{model.TaskCoding, model.TaskTechnical}, Tag: model.TagCoding, Factor: 1.15},
			{Complexities: []model.Complexity{model.ComplexitySimple}, Tag: model.TagFast, Factor: 1.1},
		},
	}
}
