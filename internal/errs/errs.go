package errs

import (
	"errors"
	"fmt"
)

// CodexError is the structured error type threaded through the pipeline,
// registry, reconciler, and query router.
type CodexError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

func (e *CodexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CodexError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match CodexErrors by code, ignoring Message/Details/Cause.
func (e *CodexError) Is(target error) bool {
	t, ok := target.(*CodexError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *CodexError) WithDetail(key, value string) *CodexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *CodexError) WithSuggestion(s string) *CodexError {
	e.Suggestion = s
	return e
}

// New builds a CodexError, deriving category/severity/retryable from code.
func New(code, message string, cause error) *CodexError {
	return &CodexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

func Wrap(code string, err error) *CodexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel constructors for the taxonomy named in spec §7.

func NotIndexed(root string) *CodexError {
	return New(CodeNotIndexed, "path is not indexed: "+root, nil).WithDetail("root", root)
}

func AlreadyIndexing(root string) *CodexError {
	return New(CodeAlreadyIndexing, "path is already indexing: "+root, nil).WithDetail("root", root)
}

func AlreadyIndexed(root string) *CodexError {
	return New(CodeAlreadyIndexed, "path is already indexed: "+root, nil).WithDetail("root", root)
}

func SubtreeCovered(root string) *CodexError {
	return New(CodeSubtreeCovered, "an ancestor is already indexed or indexing: "+root, nil).
		WithDetail("root", root).
		WithSuggestion("search through the ancestor instead of re-registering")
}

// CollectionLimitReached is propagated verbatim and never retried; callers
// surface it as a terminal, success-shaped response rather than an
// operational failure.
func CollectionLimitReached(backendMessage string) *CodexError {
	return New(CodeCollectionLimitReached, backendMessage, nil)
}

func CollectionMissing(name string) *CodexError {
	return New(CodeCollectionMissing, "collection missing for indexed codebase: "+name, nil).
		WithDetail("collection", name).
		WithSuggestion("re-index the path")
}

// EmbeddingSubkind enumerates §4.5's EmbeddingError subkinds.
type EmbeddingSubkind string

const (
	EmbeddingAuthentication  EmbeddingSubkind = "authentication"
	EmbeddingRateLimited     EmbeddingSubkind = "rate_limited"
	EmbeddingTransport       EmbeddingSubkind = "transport"
	EmbeddingInvalidResponse EmbeddingSubkind = "invalid_response"
)

func EmbeddingError(kind EmbeddingSubkind, message string, cause error) *CodexError {
	code := CodeEmbeddingTransport
	switch kind {
	case EmbeddingAuthentication:
		code = CodeEmbeddingAuthentication
	case EmbeddingRateLimited:
		code = CodeEmbeddingRateLimited
	case EmbeddingInvalidResponse:
		code = CodeEmbeddingInvalidResponse
	}
	e := New(code, message, cause)
	e.WithDetail("subkind", string(kind))
	if kind == EmbeddingAuthentication {
		e.Retryable = false
	}
	return e
}

// StoreSubkind enumerates §7's StoreError subkinds.
type StoreSubkind string

const (
	StoreConnect StoreSubkind = "connect"
	StoreSchema  StoreSubkind = "schema"
	StoreInsert  StoreSubkind = "insert"
	StoreQuery   StoreSubkind = "query"
	StoreSearch  StoreSubkind = "search"
)

func StoreError(kind StoreSubkind, message string, cause error) *CodexError {
	code := CodeStoreConnect
	switch kind {
	case StoreSchema:
		code = CodeStoreSchema
	case StoreInsert:
		code = CodeStoreInsert
	case StoreQuery:
		code = CodeStoreQuery
	case StoreSearch:
		code = CodeStoreSearch
	}
	return New(code, message, cause).WithDetail("subkind", string(kind))
}

func SplitError(filePath string, cause error) *CodexError {
	return New(CodeSplitFailed, "split failed for "+filePath, cause).WithDetail("file_path", filePath)
}

// IndexCancelled is raised by cooperative cancellation; it is not a failure,
// the caller returns the Codebase to indexing at the last observed percent.
func IndexCancelled(root string, percent int) *CodexError {
	return New(CodeIndexCancelled, "index run cancelled", nil).
		WithDetail("root", root).
		WithDetail("percent", fmt.Sprintf("%d", percent))
}

func PathError(code, path string, cause error) *CodexError {
	return New(code, "path error: "+path, cause).WithDetail("path", path)
}

func IsRetryable(err error) bool {
	var ce *CodexError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

func IsFatal(err error) bool {
	var ce *CodexError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

func Code(err error) string {
	var ce *CodexError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
