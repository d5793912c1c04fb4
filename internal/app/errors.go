package app

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("unsupported file type, only PDF is accepted")
	ErrFileTooLarge        = errors.New("file is too large")
	ErrEmptyDocument       = errors.New("document has no extractable text")
	ErrMessageEmpty        = errors.New("message content is empty")

	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already registered")
	// ErrDocumentNotReady is returned for queries against a document whose
	// ingestion has not finished or has failed.
	ErrDocumentNotReady = errors.New("document is not ready")
	// ErrDocumentBusy is returned when an operation needs a terminal document
	// but ingestion is still running.
	ErrDocumentBusy = errors.New("document is being processed")

	ErrIngestEnqueue = errors.New("ingest job enqueue failed")
	// ErrIngestNotStarted means the document could not be loaded, so its
	// status was left untouched and the job may be retried.
	ErrIngestNotStarted = errors.New("ingest not started")
	// ErrIngestInterrupted is the failure reason recorded for a run that left
	// its document in an intermediate status and never came back.
	ErrIngestInterrupted = errors.New("ingestion interrupted before completion")
)
