// Package kind defines the error kinds shared across pipeline stages and the
// query path. Stages classify failures into these kinds so that callers can
// decide between retry, skip, and surface without inspecting error strings.
package kind

import "errors"

var (
	// ErrInputInvalid marks malformed requests: bad URIs, invalid collection
	// names, oversized prompts, bad payload schemas. Maps to HTTP 400.
	ErrInputInvalid = errors.New("input invalid")

	// ErrConfigMissing marks a required setting that resolved to nothing and
	// had no default. Maps to HTTP 500.
	ErrConfigMissing = errors.New("config missing")

	// ErrNotFound marks a missing object. Manifest and page lookups treat it
	// as "stage not ready"; everything else surfaces it.
	ErrNotFound = errors.New("not found")

	// ErrCopyVerification marks a copy whose head check disagreed with the
	// source on length or content hash. Fatal for the record.
	ErrCopyVerification = errors.New("copy verification failed")

	// ErrBackendUnavailable marks transient failures of the object store,
	// queue, audit store, or a model endpoint after retries were exhausted.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrParse marks malformed PDF/DOCX/XLSX/hOCR/JSON input. The record is
	// skipped and the batch continues.
	ErrParse = errors.New("parse error")

	// ErrTooManyPages marks a document over the page ceiling. The splitter
	// refuses it and the document is audited FAILED.
	ErrTooManyPages = errors.New("too many pages")

	ErrOCRFailed    = errors.New("ocr failed")
	ErrEmbedFailed  = errors.New("embed failed")
	ErrRerankFailed = errors.New("rerank failed")
	ErrLLMFailed    = errors.New("llm failed")

	// ErrTimeout marks an exceeded hard deadline. Terminal for the affected
	// document in the redaction flow.
	ErrTimeout = errors.New("timeout")
)

// IsRetryable reports whether an error kind is worth retrying with backoff.
// Only transient backend failures qualify; everything else is deterministic.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
