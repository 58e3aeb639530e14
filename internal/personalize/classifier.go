package personalize

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"modelgate/internal/catalog"
	"modelgate/internal/model"
)

type keywordRule struct {
	keyword string
	re      *regexp.Regexp
}

// Classifier 基于关键词表的任务分类器
type Classifier struct {
	rules    catalog.ClassifierRules
	keywords map[model.TaskType][]keywordRule
	now      func() time.Time
}

func NewClassifier(rules catalog.ClassifierRules) *Classifier {
	c := &Classifier{
		rules:    rules,
		keywords: make(map[model.TaskType][]keywordRule, len(rules.Keywords)),
		now:      time.Now,
	}
	for task, words := range rules.Keywords {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			c.keywords[task] = append(c.keywords[task], keywordRule{
				keyword: w,
				re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`),
			})
		}
	}
	return c
}

// Classify 统计每类关键词命中数；最高分并列或无命中时为 conversation
func (c *Classifier) Classify(message string) model.TaskContext {
	text := strings.ToLower(message)
	tc := model.TaskContext{
		Type:          model.TaskConversation,
		MessageLength: utf8.RuneCountInString(message),
		HourOfDay:     c.now().Hour(),
	}

	best, bestCount, tied := model.TaskConversation, 0, false
	for _, task := range model.AllTaskTypes {
		count := 0
		for _, kw := range c.keywords[task] {
			if kw.re.MatchString(text) {
				count++
				tc.MatchedKeywords = append(tc.MatchedKeywords, kw.keyword)
			}
		}
		switch {
		case count > bestCount:
			best, bestCount, tied = task, count, false
		case count == bestCount && count > 0:
			tied = true
		}
	}
	if bestCount > 0 && !tied {
		tc.Type = best
	}

	matched := len(tc.MatchedKeywords)
	switch {
	case tc.MessageLength >= c.rules.ComplexLength || matched >= c.rules.ComplexKeywords:
		tc.Complexity = model.ComplexityComplex
	case tc.MessageLength >= c.rules.ModerateLength || matched >= c.rules.ModerateKeywords:
		tc.Complexity = model.ComplexityModerate
	default:
		tc.Complexity = model.ComplexitySimple
	}
	return tc
}
