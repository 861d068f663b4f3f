package domain

import "time"

// Section is one of the fixed assessment sections.
type Section string

const (
	SectionSymptoms      Section = "symptoms"
	SectionNutrition     Section = "nutrition"
	SectionTraining      Section = "training"
	SectionSleepRecovery Section = "sleep_recovery"
	SectionContext       Section = "context"
)

// Sections lists every section in breakdown order.
var Sections = []Section{
	SectionSymptoms,
	SectionNutrition,
	SectionTraining,
	SectionSleepRecovery,
	SectionContext,
}

// QuestionType controls how a question contributes to the score.
type QuestionType string

const (
	QuestionScale             QuestionType = "scale"
	QuestionSingleChoice      QuestionType = "single_choice"
	QuestionTextInput         QuestionType = "text_input"
	QuestionTransitionMessage QuestionType = "transition_message"
)

// Tier is the coarse classification of an assessment score.
type Tier string

const (
	TierLow    Tier = "low"
	TierNormal Tier = "normal"
	TierHigh   Tier = "high"
)

// Scale describes a linear-scale question.
type Scale struct {
	Min              float64 `json:"min" yaml:"min"`
	Max              float64 `json:"max" yaml:"max"`
	PointsMultiplier float64 `json:"pointsMultiplier" yaml:"points_multiplier"`
}

// Option is a discrete choice carrying its own point value.
type Option struct {
	ID     string  `json:"id" yaml:"id"`
	Label  string  `json:"label,omitempty" yaml:"label"`
	Points float64 `json:"points" yaml:"points"`
}

// Question is a single entry of a category's question set.
type Question struct {
	ID      string       `json:"id" yaml:"id"`
	Section Section      `json:"section" yaml:"section"`
	Type    QuestionType `json:"type" yaml:"type"`
	Prompt  string       `json:"prompt,omitempty" yaml:"prompt"`
	Scale   *Scale       `json:"scale,omitempty" yaml:"scale"`
	Options []Option     `json:"options,omitempty" yaml:"options"`
}

// QuestionSet is the ordered question list for a program category.
type QuestionSet struct {
	Category  string     `json:"category" yaml:"category"`
	MaxScore  float64    `json:"maxScore" yaml:"max_score"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// ScoredResponse is an accepted response with its point contribution.
type ScoredResponse struct {
	QuestionID string       `json:"questionId"`
	Section    Section      `json:"section"`
	Type       QuestionType `json:"type"`
	Answer     Answer       `json:"answer"`
	Points     float64      `json:"points"`
}

// SectionScore accumulates raw points while a questionnaire is scored.
type SectionScore struct {
	Section       Section `json:"section"`
	RawPoints     float64 `json:"rawPoints"`
	AnsweredCount int     `json:"answeredCount"`
}

// Breakdown holds per-section scores normalized to 0-10, plus the overall 0-100 score.
type Breakdown struct {
	Symptoms      int `json:"symptoms"`
	Nutrition     int `json:"nutrition"`
	Training      int `json:"training"`
	SleepRecovery int `json:"sleepRecovery"`
	Context       int `json:"context"`
	Overall       int `json:"overall"`
}

// Set stores a normalized section value.
func (b *Breakdown) Set(section Section, value int) {
	switch section {
	case SectionSymptoms:
		b.Symptoms = value
	case SectionNutrition:
		b.Nutrition = value
	case SectionTraining:
		b.Training = value
	case SectionSleepRecovery:
		b.SleepRecovery = value
	case SectionContext:
		b.Context = value
	}
}

// QuizResult is the immutable outcome of a completed assessment.
type QuizResult struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId,omitempty"`
	Category    string           `json:"category"`
	TotalScore  int              `json:"totalScore"`
	Tier        Tier             `json:"tier"`
	Breakdown   Breakdown        `json:"breakdown"`
	Responses   []ScoredResponse `json:"responses"`
	CompletedAt time.Time        `json:"completedAt"`
}

// ComplianceRecord is the per-day task completion count owned by the task tracker.
type ComplianceRecord struct {
	Date      time.Time `json:"date"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
}

// DailyScoreRecord is the progressive score for one calendar day.
type DailyScoreRecord struct {
	Date                 time.Time `json:"date"`
	Score                int       `json:"score"`
	CompliancePercentage int       `json:"compliancePercentage"`
	CompletedTasks       int       `json:"completedTasks"`
	TotalTasks           int       `json:"totalTasks"`
	Initial              bool      `json:"isInitial,omitempty"`
}

// ChainKey identifies one chain of daily scores: a user's days since a given
// seed assessment.
type ChainKey struct {
	UserID       string
	AssessmentID string
}

// SameValue reports whether two records for the same day carry identical values.
func (r DailyScoreRecord) SameValue(other DailyScoreRecord) bool {
	return r.Date.Equal(other.Date) &&
		r.Score == other.Score &&
		r.CompliancePercentage == other.CompliancePercentage &&
		r.CompletedTasks == other.CompletedTasks &&
		r.TotalTasks == other.TotalTasks
}
