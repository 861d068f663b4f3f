package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"adherence-service/internal/domain"
	"adherence-service/internal/logger"
	"adherence-service/internal/metrics"
	"adherence-service/internal/policy"
)

// QuestionSetRepository loads the question set for a program category.
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, category string) (domain.QuestionSet, error)
}

// AssessmentReader returns a user's most recent completed assessment.
type AssessmentReader interface {
	LatestAssessment(ctx context.Context, userID string) (domain.QuizResult, bool, error)
}

// AssessmentRepository persists completed assessments.
type AssessmentRepository interface {
	AssessmentReader
	SaveAssessment(ctx context.Context, result domain.QuizResult) error
}

// AssessmentService scores questionnaires and records the resulting seed scores.
type AssessmentService struct {
	questionSets QuestionSetRepository
	assessments  AssessmentRepository
	now          func() time.Time
	newID        func() string
}

func NewAssessmentService(questionSets QuestionSetRepository, assessments AssessmentRepository) *AssessmentService {
	return &AssessmentService{
		questionSets: questionSets,
		assessments:  assessments,
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
	}
}

// WithClock replaces the completion clock; used by tests.
func (s *AssessmentService) WithClock(now func() time.Time) *AssessmentService {
	s.now = now
	return s
}

// Score grades responses against the category's question set without persisting.
func (s *AssessmentService) Score(ctx context.Context, category string, responses map[string]domain.Answer) (domain.QuizResult, error) {
	if category == "" {
		return domain.QuizResult{}, fmt.Errorf("%w: empty category", domain.ErrInvalidCategory)
	}
	set, err := s.questionSets.GetQuestionSet(ctx, category)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCategory) {
			return domain.QuizResult{}, err
		}
		return domain.QuizResult{}, fmt.Errorf("%w: load question set: %w", domain.ErrPersistenceUnavailable, err)
	}
	if len(set.Questions) == 0 {
		return domain.QuizResult{}, fmt.Errorf("%w: %q has no questions", domain.ErrInvalidCategory, category)
	}
	result := ScoreAssessment(set, responses)
	result.Category = category
	return result, nil
}

// Submit scores responses and stores the result as the user's new seed assessment.
func (s *AssessmentService) Submit(ctx context.Context, userID, category string, responses map[string]domain.Answer) (domain.QuizResult, error) {
	result, err := s.Score(ctx, category, responses)
	if err != nil {
		return domain.QuizResult{}, err
	}
	result.ID = s.newID()
	result.UserID = userID
	result.CompletedAt = s.now().UTC()

	if err := s.assessments.SaveAssessment(ctx, result); err != nil {
		return domain.QuizResult{}, fmt.Errorf("%w: save assessment: %w", domain.ErrPersistenceUnavailable, err)
	}
	metrics.RecordAssessment(result.Category, string(result.Tier))
	logger.FromContext(ctx).Info("assessment completed",
		"user_id", userID, "category", category, "score", result.TotalScore, "tier", result.Tier)
	return result, nil
}

// Latest returns the user's most recent assessment.
func (s *AssessmentService) Latest(ctx context.Context, userID string) (domain.QuizResult, error) {
	result, ok, err := s.assessments.LatestAssessment(ctx, userID)
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("%w: load assessment: %w", domain.ErrPersistenceUnavailable, err)
	}
	if !ok {
		return domain.QuizResult{}, domain.ErrNoSeedAssessment
	}
	return result, nil
}

// ScoreAssessment grades responses against a question set. Unanswered questions
// and unknown choices contribute zero points; it never fails.
func ScoreAssessment(set domain.QuestionSet, responses map[string]domain.Answer) domain.QuizResult {
	sections := make(map[domain.Section]*domain.SectionScore, len(domain.Sections))
	for _, section := range domain.Sections {
		sections[section] = &domain.SectionScore{Section: section}
	}

	var total float64
	scored := make([]domain.ScoredResponse, 0, len(responses))
	for _, q := range set.Questions {
		if q.Type == domain.QuestionTransitionMessage {
			continue
		}
		answer, ok := responses[q.ID]
		if !ok {
			continue
		}

		entry := domain.ScoredResponse{QuestionID: q.ID, Section: q.Section, Type: q.Type, Answer: answer}
		switch q.Type {
		case domain.QuestionScale:
			entry.Points = scalePoints(q.Scale, answer)
		case domain.QuestionSingleChoice:
			entry.Points = choicePoints(q.Options, answer)
		case domain.QuestionTextInput:
			scored = append(scored, entry)
			continue
		default:
			continue
		}

		if math.IsNaN(entry.Points) || math.IsInf(entry.Points, 0) {
			entry.Points = 0
		}
		total += entry.Points
		if sec, ok := sections[q.Section]; ok {
			sec.RawPoints += entry.Points
			sec.AnsweredCount++
		}
		scored = append(scored, entry)
	}

	var breakdown domain.Breakdown
	for _, section := range domain.Sections {
		breakdown.Set(section, normalizeSection(sections[section]))
	}

	totalScore := 0
	if set.MaxScore > 0 {
		totalScore = policy.Clamp(policy.RoundHalfUp(total/set.MaxScore*100), policy.MinScore, policy.MaxScore)
	}
	breakdown.Overall = totalScore

	return domain.QuizResult{
		Category:   set.Category,
		TotalScore: totalScore,
		Tier:       policy.TierFor(totalScore),
		Breakdown:  breakdown,
		Responses:  scored,
	}
}

// Each question is assumed to sit on a 0-10 scale.
func normalizeSection(sec *domain.SectionScore) int {
	if sec == nil || sec.AnsweredCount == 0 {
		return 0
	}
	v := sec.RawPoints / (float64(sec.AnsweredCount) * 10) * 10
	return policy.Clamp(policy.RoundHalfUp(v), 0, 10)
}

func scalePoints(scale *domain.Scale, answer domain.Answer) float64 {
	v, ok := answer.Float()
	if !ok {
		return 0
	}
	if scale == nil {
		return v
	}
	if scale.Max > scale.Min {
		if v < scale.Min {
			v = scale.Min
		}
		if v > scale.Max {
			v = scale.Max
		}
	}
	return v * scale.PointsMultiplier
}

func choicePoints(options []domain.Option, answer domain.Answer) float64 {
	id := answer.ChoiceID()
	for _, o := range options {
		if o.ID == id {
			return o.Points
		}
	}
	return 0
}
