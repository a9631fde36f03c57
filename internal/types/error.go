package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage and workflow layers. Services wrap these
// with entity context via %w; handlers map them to HTTP status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("E_VERSION")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidType       = errors.New("invalid primary type")
	ErrInvalidConfidence = errors.New("confidence score out of range")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrParse             = errors.New("ontology parse failed")
	ErrDuplicate         = errors.New("duplicate concept")
)

type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}
