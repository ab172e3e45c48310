// Package biz implements the question-answering pipeline.
//
// The pipeline is split into focused components:
//   - Segmenter: turns per-page document text into ordered chunks
//   - Indexer: embeds chunks and writes them to the vector store
//   - Orchestrator: embeds a question, retrieves, and generates an answer
//   - QueryCache: caches finished answers in Redis, keyed by tenant and scope
//   - Service: composes the components behind one facade
package biz
