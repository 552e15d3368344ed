package ai

import "context"

// EssayInput contains the artefacts needed to grade one written submission.
type EssayInput struct {
	Title        string
	Instructions string
	MinWords     int
	// Strict grading applies the full word count requirement; loose grading tolerates a shortfall.
	Strict     bool
	TotalMarks float64
	Content    string
}

// Feedback is the rubric breakdown produced alongside a score.
type Feedback struct {
	TopicRelevance string `json:"topicRelevance"`
	Structure      string `json:"structure"`
	ContentQuality string `json:"contentQuality"`
	WordCount      int    `json:"wordCount"`
}

// EvaluationResult is the structured outcome returned by an evaluator. Score is expressed in
// marks, between zero and the input's TotalMarks.
type EvaluationResult struct {
	Score    float64  `json:"score"`
	Remarks  string   `json:"remarks"`
	Feedback Feedback `json:"feedback"`
}

// Evaluator describes a grader capable of scoring essays.
type Evaluator interface {
	Evaluate(ctx context.Context, input EssayInput) (EvaluationResult, error)
}
