package models

// Recommendation is the pipeline's overall verdict.
type Recommendation string

const (
	RecommendationPass Recommendation = "PASS"
	RecommendationFail Recommendation = "FAIL"
)

// DetailedFeedback is the structured rubric breakdown attached to an evaluation.
type DetailedFeedback struct {
	TopicRelevance string         `json:"topicRelevance"`
	Structure      string         `json:"structure"`
	ContentQuality string         `json:"contentQuality"`
	WordCount      int            `json:"wordCount"`
	Recommendation Recommendation `json:"recommendation"`
}

// Evaluation is the graded result for one submission. PercentageScore and Passed are
// always computed by the server.
type Evaluation struct {
	ID               string           `json:"id"`
	Score            float64          `json:"score"`
	PercentageScore  float64          `json:"percentageScore"`
	Remarks          string           `json:"remarks"`
	Passed           bool             `json:"passed"`
	DetailedFeedback DetailedFeedback `json:"detailedFeedback"`
}
