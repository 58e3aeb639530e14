package dispatch

import (
	"context"
	"strings"

	"modelgate/internal/catalog"
	"modelgate/internal/model"

	log "github.com/sirupsen/logrus"
)

// minRecommendConfidence 自动路由采纳个性化推荐所需的最低置信度
const minRecommendConfidence = 0.5

// selection 选择结果
type selection struct {
	model  model.ModelDescriptor
	manual bool
	reason string
}

// selectModel 显式模型优先，其余按路由策略选择
func (d *Dispatcher) selectModel(ctx context.Context, req *model.Request, candidates []model.ModelDescriptor, tc model.TaskContext) selection {
	if req.Model != "" {
		for _, c := range candidates {
			if strings.EqualFold(c.Name, req.Model) {
				return selection{model: c, manual: true, reason: "explicit"}
			}
		}
		log.Debugf("dispatch: requested model %s filtered out, applying %s strategy", req.Model, req.Strategy())
	}

	switch req.Strategy() {
	case model.RoutingCost:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.MeanUnitCost() < best.MeanUnitCost() {
				best = c
			}
		}
		return selection{model: best, reason: "cost"}
	case model.RoutingSpeed:
		return d.firstMatching(candidates, d.tiers.Fast, "speed")
	case model.RoutingQuality:
		return d.firstMatching(candidates, d.tiers.HighQuality, "quality")
	case model.RoutingBalanced:
		return d.firstMatching(candidates, d.tiers.Balanced, "balanced")
	default:
		return d.selectAuto(ctx, req, candidates, tc)
	}
}

// selectAuto 自动策略：高置信度推荐 > 复杂/技术任务用高质量模型 > 短消息用快速模型 > 首个候选
func (d *Dispatcher) selectAuto(ctx context.Context, req *model.Request, candidates []model.ModelDescriptor, tc model.TaskContext) selection {
	if d.recommender != nil && req.UserID != "" {
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Name
		}
		recs, err := d.recommender.Recommend(ctx, req.UserID, tc, names, 1)
		if err != nil {
			log.Warnf("dispatch: recommendation for %s failed: %v", req.UserID, err)
		} else if len(recs) > 0 && recs[0].Confidence >= minRecommendConfidence {
			for _, c := range candidates {
				if c.Name == recs[0].Model {
					return selection{model: c, reason: "personalized"}
				}
			}
		}
	}

	if tc.Complexity == model.ComplexityComplex || tc.Type == model.TaskTechnical {
		return d.firstMatching(candidates, d.tiers.HighQuality, "auto:complex")
	}
	if tc.MessageLength < d.shortMessageLength {
		for _, c := range candidates {
			if catalog.MatchAny(d.tiers.Fast, c.Name) || c.HasTag(model.TagCheap) {
				return selection{model: c, reason: "auto:short"}
			}
		}
	}
	return selection{model: candidates[0], reason: "auto:default"}
}

// firstMatching 返回首个匹配模式的候选，否则返回首个候选
func (d *Dispatcher) firstMatching(candidates []model.ModelDescriptor, patterns []string, reason string) selection {
	for _, c := range candidates {
		if catalog.MatchAny(patterns, c.Name) {
			return selection{model: c, reason: reason}
		}
	}
	return selection{model: candidates[0], reason: reason + ":fallthrough"}
}
