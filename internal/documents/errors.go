package documents

import "errors"

var (
	// ErrEmptyDocument is returned when a document has no text after trimming.
	ErrEmptyDocument = errors.New("document text must not be empty")
	// ErrEmptyQuestion is returned when a question has no text after trimming.
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrUnreadablePDF is returned when a PDF cannot be parsed or has no extractable text.
	ErrUnreadablePDF = errors.New("unable to extract text from PDF")
)
