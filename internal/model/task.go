package model

type TaskType string

const (
	TaskCoding       TaskType = "coding"
	TaskWriting      TaskType = "writing"
	TaskAnalysis     TaskType = "analysis"
	TaskCreative     TaskType = "creative"
	TaskTranslation  TaskType = "translation"
	TaskTechnical    TaskType = "technical"
	TaskConversation TaskType = "conversation"
)

// AllTaskTypes lists the classifiable task categories in tie-break order.
var AllTaskTypes = []TaskType{
	TaskCoding, TaskWriting, TaskAnalysis, TaskCreative, TaskTranslation, TaskTechnical,
}

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// TaskContext 单次请求的任务上下文（派生、临时）
type TaskContext struct {
	Type            TaskType   `json:"type"`
	Complexity      Complexity `json:"complexity"`
	MessageLength   int        `json:"messageLength"`
	MatchedKeywords []string   `json:"matchedKeywords"`
	HourOfDay       int        `json:"hourOfDay"`
}

// ModelScore 个性化评分结果
type ModelScore struct {
	Model      string   `json:"model"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
}
