package models

// TaskType classifies a decomposed analysis subtask.
type TaskType string

const (
	TaskVariance   TaskType = "variance"
	TaskTrend      TaskType = "trend"
	TaskRatio      TaskType = "ratio"
	TaskComparison TaskType = "comparison"
	TaskForecast   TaskType = "forecast"
	TaskRisk       TaskType = "risk"
	TaskSummary    TaskType = "summary"
)

// ValidTaskType reports whether t is one of the fixed task types.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskVariance, TaskTrend, TaskRatio, TaskComparison,
		TaskForecast, TaskRisk, TaskSummary:
		return true
	}
	return false
}

// SubTask is one decomposed unit of a complex analytical request.
// Never mutated after creation; priority 1 is highest.
type SubTask struct {
	Type        TaskType `json:"type"`
	Priority    int      `json:"priority"`
	Description string   `json:"description"`
}

// WorkerResult is the independent finding for one SubTask.
type WorkerResult struct {
	Type      TaskType          `json:"type"`
	Narrative string            `json:"narrative"`
	Metrics   map[string]string `json:"metrics,omitempty"`
	Degraded  bool              `json:"degraded,omitempty"`
}

// EvaluationCriterion names one axis a draft artifact is scored on.
type EvaluationCriterion string

const (
	CriterionAccuracy      EvaluationCriterion = "accuracy"
	CriterionCompleteness  EvaluationCriterion = "completeness"
	CriterionClarity       EvaluationCriterion = "clarity"
	CriterionActionability EvaluationCriterion = "actionability"
)

// AllCriteria lists every criterion in scoring order.
func AllCriteria() []EvaluationCriterion {
	return []EvaluationCriterion{
		CriterionAccuracy,
		CriterionCompleteness,
		CriterionClarity,
		CriterionActionability,
	}
}

// EvaluationScore maps each active criterion to a 1-10 score.
type EvaluationScore map[EvaluationCriterion]int

// Verdict is the derived classification of an EvaluationScore.
type Verdict string

const (
	VerdictPass             Verdict = "pass"
	VerdictNeedsImprovement Verdict = "needs-improvement"
	VerdictFail             Verdict = "fail"
)

// DeriveVerdict applies the fixed rule: pass requires every score >= 7,
// fail if any score <= 3, otherwise needs-improvement. An empty score
// cannot pass.
func DeriveVerdict(score EvaluationScore) Verdict {
	if len(score) == 0 {
		return VerdictNeedsImprovement
	}
	allHigh := true
	for _, v := range score {
		if v <= 3 {
			return VerdictFail
		}
		if v < 7 {
			allHigh = false
		}
	}
	if allHigh {
		return VerdictPass
	}
	return VerdictNeedsImprovement
}

// EvaluationReport is the terminal output of the evaluate-improve engine.
type EvaluationReport struct {
	Artifact   string                              `json:"artifact"`
	Score      EvaluationScore                     `json:"score"`
	Verdict    Verdict                             `json:"verdict"`
	Feedback   map[EvaluationCriterion]string      `json:"feedback,omitempty"`
	Iterations int                                 `json:"iterations"`
	Passed     bool                                `json:"passed"`
}
