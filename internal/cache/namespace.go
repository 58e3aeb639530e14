package cache

import "time"

type Namespace string

const (
	NamespaceResponse       Namespace = "response"
	NamespaceClassification Namespace = "classification"
	NamespaceUserPlan       Namespace = "user_plan"
	NamespaceModelList      Namespace = "model_list"
	NamespaceAnalytics      Namespace = "analytics"
)

// DefaultTTLs 各命名空间的固定 TTL，启动后不可更改
var DefaultTTLs = map[Namespace]time.Duration{
	NamespaceResponse:       time.Hour,
	NamespaceClassification: 30 * time.Minute,
	NamespaceUserPlan:       5 * time.Minute,
	NamespaceModelList:      2 * time.Hour,
	NamespaceAnalytics:      15 * time.Minute,
}
