package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// ErrEmptyContent is returned when a submission has no gradable text.
var ErrEmptyContent = errors.New("submission has no text content")

// looseLengthTolerance is the share of MinWords a loose grader accepts as complete.
const looseLengthTolerance = 0.8

// HeuristicEvaluator grades essays offline from word count, keyword overlap with the
// instructions, paragraphing and vocabulary variety. It is deterministic for a given input.
type HeuristicEvaluator struct{}

// NewHeuristicEvaluator returns the offline evaluator.
func NewHeuristicEvaluator() *HeuristicEvaluator {
	return &HeuristicEvaluator{}
}

// Evaluate scores the essay.
func (HeuristicEvaluator) Evaluate(ctx context.Context, input EssayInput) (EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return EvaluationResult{}, err
	}

	words := tokenize(input.Content)
	if len(words) == 0 {
		return EvaluationResult{}, ErrEmptyContent
	}

	relevance := topicRelevance(input.Title+" "+input.Instructions, words)
	length := lengthFactor(len(words), input.MinWords, input.Strict)
	structure := structureFactor(input.Content)
	variety := vocabularyFactor(words)

	composite := 0.4*relevance + 0.3*length + 0.15*structure + 0.15*variety
	score := math.Round(composite*input.TotalMarks*10) / 10

	feedback := Feedback{
		TopicRelevance: describe(relevance, "Addresses the topic closely", "Partially addresses the topic", "Largely off topic"),
		Structure:      describe(structure, "Well organised into paragraphs", "Some paragraphing", "No clear structure"),
		ContentQuality: describe(variety, "Varied and precise vocabulary", "Adequate vocabulary", "Repetitive vocabulary"),
		WordCount:      len(words),
	}

	return EvaluationResult{
		Score:    score,
		Remarks:  remarksFor(len(words), input.MinWords, composite),
		Feedback: feedback,
	}, nil
}

func tokenize(content string) []string {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return lo.Filter(fields, func(word string, _ int) bool {
		return strings.Trim(word, "'") != ""
	})
}

func topicRelevance(prompt string, words []string) float64 {
	keywords := lo.Uniq(lo.Filter(tokenize(prompt), func(word string, _ int) bool {
		return len(word) > 3
	}))
	if len(keywords) == 0 {
		return 1
	}

	present := lo.SliceToMap(words, func(word string) (string, struct{}) {
		return word, struct{}{}
	})
	hits := lo.CountBy(keywords, func(keyword string) bool {
		_, ok := present[keyword]
		return ok
	})

	// A third of the prompt's keywords is treated as full coverage.
	return math.Min(1, float64(hits)/(float64(len(keywords))/3))
}

func lengthFactor(count, minWords int, strict bool) float64 {
	if minWords <= 0 {
		return 1
	}
	required := float64(minWords)
	if !strict {
		required *= looseLengthTolerance
	}
	return math.Min(1, float64(count)/required)
}

func structureFactor(content string) float64 {
	paragraphs := lo.CountBy(strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n"), func(block string) bool {
		return strings.TrimSpace(block) != ""
	})
	switch {
	case paragraphs >= 3:
		return 1
	case paragraphs == 2:
		return 0.7
	default:
		return 0.4
	}
}

func vocabularyFactor(words []string) float64 {
	ratio := float64(len(lo.Uniq(words))) / float64(len(words))
	// Long essays repeat function words; 0.5 distinct is already rich.
	return math.Min(1, ratio/0.5)
}

func describe(value float64, high, mid, low string) string {
	switch {
	case value >= 0.75:
		return high
	case value >= 0.4:
		return mid
	default:
		return low
	}
}

func remarksFor(count, minWords int, composite float64) string {
	var builder strings.Builder
	switch {
	case composite >= 0.8:
		builder.WriteString("Strong essay.")
	case composite >= 0.6:
		builder.WriteString("Solid essay with room to improve.")
	default:
		builder.WriteString("The essay needs substantial revision.")
	}
	if minWords > 0 && count < minWords {
		fmt.Fprintf(&builder, " It is %d words short of the %d word minimum.", minWords-count, minWords)
	}
	return builder.String()
}
