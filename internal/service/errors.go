package service

import "errors"

var (
	// ErrAssignmentNotFound indicates the requested assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrSubmissionNotFound indicates the requested submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrEvaluationNotFound indicates the requested evaluation does not exist.
	ErrEvaluationNotFound = errors.New("evaluation not found")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrScoreOutOfRange rejects grade overrides outside [0, totalMarks].
	ErrScoreOutOfRange = errors.New("score must be between 0 and the assignment total marks")
	// ErrNoFiles rejects an upload without files.
	ErrNoFiles = errors.New("no files uploaded")
	// ErrUnknownFormat rejects an unsupported export format.
	ErrUnknownFormat = errors.New("unsupported export format")
)
