// Package rag implements hybrid retrieval over a private document corpus:
// chunking and ingestion, dense + lexical retrieval with score fusion,
// cross-encoder reranking, role-based visibility filtering, context window
// assembly and compression, query decomposition/enhancement, and answer
// generation. Model capabilities (embedding, scoring, generation) are
// consumed through small interfaces so the pipeline stays testable.
package rag
