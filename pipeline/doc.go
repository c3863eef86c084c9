// Package pipeline implements document ingestion and per-chunk entity
// extraction on top of the job runtime.
//
// Ingestion sanitizes raw documents, derives content-addressed IDs,
// skips documents already stored, splits new content into token-bounded
// chunks, persists document and chunk records, and submits one
// extraction job per document.
//
// Extraction is the processor the worker pool runs for each chunk: it
// asks an upstream model for entities and relations, validates the
// response against a JSON schema, merges the results into the output
// store, and leaves a per-chunk index behind as the chunk's output
// reference.
package pipeline
