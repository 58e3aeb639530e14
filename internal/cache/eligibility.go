package cache

import (
	"regexp"

	"modelgate/internal/model"
)

// MaxCacheableRandomness 随机度高于此值的生成结果不缓存
const MaxCacheableRandomness = 0.7

// uniqueInputPatterns 命中任一规则的输入视为“唯一”，不缓存
var uniqueInputPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),                                             // 2025-03-10
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),                                           // 03/10/2025
	regexp.MustCompile(`\b\d{6,}\b`),                                                            // long numeric ids
	regexp.MustCompile(`(?i)\b(user|customer|account)[ _-]?id\b`),                               // "user id", "user_id"
	regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`),                             // email
	regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), // uuid
	regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(:\d{2})?(\s?[ap]m)?\b`),                             // 14:30, 2:30 pm
}

// LooksUnique reports whether the text embeds dates, ids or clock times.
func LooksUnique(text string) bool {
	for _, re := range uniqueInputPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ShouldCacheResponse 判断请求的响应是否可缓存
func ShouldCacheResponse(req *model.Request) bool {
	if req == nil || req.Message == "" {
		return false
	}
	if req.Randomness != nil && *req.Randomness > MaxCacheableRandomness {
		return false
	}
	return !LooksUnique(req.Message) && !LooksUnique(req.SystemInstruction)
}

// ResponseParams is the parameter bag that distinguishes cached responses
// for the same message.
func ResponseParams(req *model.Request) map[string]any {
	params := map[string]any{
		"model":    req.Model,
		"strategy": string(req.Strategy()),
		"system":   req.SystemInstruction,
	}
	if req.MaxOutputSize != nil {
		params["maxOutputSize"] = *req.MaxOutputSize
	}
	if req.Randomness != nil {
		params["randomness"] = *req.Randomness
	}
	return params
}
