package memory

import "fmt"

// EmbeddingProviderError reports a failed or malformed response from the
// upstream embedding service. It is non-fatal: retrieval degrades to an
// empty memory list, saves persist with a nil vector.
type EmbeddingProviderError struct {
	Provider string
	Err      error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a stored vector whose length does not
// match the query vector. The affected candidate is skipped; the scan
// continues.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: want %d, got %d", e.Want, e.Got)
}
