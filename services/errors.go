package services

import (
	"errors"
	"fmt"
)

// ErrRateLimitExceeded wird zurückgegeben, wenn die Tages-Quote für
// Referenz-Auflösungen eines Antrags erschöpft ist.
var ErrRateLimitExceeded = errors.New("daily reference resolution quota exceeded")

// ValidationError beschreibt eine ungültige Eingabe des Aufrufers.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NotFoundError beschreibt eine fehlende Ressource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ExternalServiceError beschreibt einen Fehler eines externen Dienstes
// (PubMed, Crossref, S3, OpenAI).
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsNotFound meldet, ob err ein NotFoundError ist.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation meldet, ob err ein ValidationError ist.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
