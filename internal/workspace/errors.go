package workspace

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching of the typed errors below.
var (
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamGeneration  = errors.New("upstream generation failed")
	ErrUpstreamPersistence = errors.New("upstream persistence failed")

	errMissingDocumentID = errors.New("store returned no document id")
)

// User-facing validation messages.
const (
	MsgQuestionTooShort = "질문을 2글자 이상 입력해 주세요."
	MsgEmptyDocument    = "분석할 내용을 입력해 주세요."
	MsgEmptyRelation    = "관계 이름을 입력해 주세요."
)

// ValidationError rejects input before any external call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UpstreamGenerationError wraps a failure of the text-generation service.
type UpstreamGenerationError struct {
	Op  string
	Err error
}

func (e *UpstreamGenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamGenerationError) Unwrap() error { return e.Err }

// Is matches ErrUpstreamGeneration.
func (e *UpstreamGenerationError) Is(target error) bool { return target == ErrUpstreamGeneration }

// UpstreamPersistenceError wraps a failure of the persistence service.
type UpstreamPersistenceError struct {
	Op  string
	Err error
}

func (e *UpstreamPersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamPersistenceError) Unwrap() error { return e.Err }

// Is matches ErrUpstreamPersistence.
func (e *UpstreamPersistenceError) Is(target error) bool { return target == ErrUpstreamPersistence }
