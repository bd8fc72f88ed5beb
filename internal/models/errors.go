package models

import "errors"

var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or missing input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a document type that cannot be decoded.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrProcessingFailed is the single opaque failure a chat caller sees when
	// any pipeline stage fails hard.
	ErrProcessingFailed = errors.New("chat processing failed")

	// ErrServiceUnavailable indicates the caller's deadline expired mid pipeline.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrIngestionFailed wraps chunking, embedding or storage failures while
	// adding a document to the knowledge base.
	ErrIngestionFailed = errors.New("failed to ingest document")

	// ErrSpeechFailed wraps failures from the speech provider.
	ErrSpeechFailed = errors.New("speech request failed")
)
