package domain

import "errors"

var (
	// ErrInvalidCategory is returned when no question set exists for a category.
	ErrInvalidCategory = errors.New("invalid assessment category")
	// ErrNoSeedAssessment is returned when a user has never completed an assessment.
	ErrNoSeedAssessment = errors.New("no seed assessment")
	// ErrPersistenceUnavailable wraps failures of the backing stores; callers may retry.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrRangeTooLarge is returned when a target date is too far past the program start.
	ErrRangeTooLarge = errors.New("date range too large")
	// ErrScoreConflict signals a cached daily score that disagrees with a recomputation.
	ErrScoreConflict = errors.New("conflicting daily score")
	// ErrInvalidDate is returned for unparsable calendar dates.
	ErrInvalidDate = errors.New("invalid date")
)
