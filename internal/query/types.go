// Package query implements the Query Router (C10): path -> collection
// resolution via the Registry (C8), dense or hybrid dispatch against the
// vector store (C6), subtree post-filtering, and threshold application,
// per spec §4.10.
package query

import "github.com/kraklabs/codex-index/internal/vectorstore"

// DefaultThreshold matches spec §4.10's default score cutoff.
const DefaultThreshold = 0.3

// Request parameterizes semantic_search.
type Request struct {
	// Path is the caller-supplied path to resolve against the Registry;
	// may be a registered root itself or any path beneath one.
	Path string

	Query      string
	TopK       int
	Threshold  *float64 // nil selects DefaultThreshold
	FilterExpr string

	// Hybrid overrides the configured default hybrid mode for this
	// request when non-nil.
	Hybrid *bool
}

// Hit is one result, re-exported from vectorstore so callers of this
// package don't need to import vectorstore directly for this value.
type Hit = vectorstore.Hit
