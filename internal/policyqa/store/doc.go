// Package store provides the tenant-isolated vector storage layer.
//
// It defines the VectorStore abstraction over a vector index and two
// backends: Milvus for production and an embedded chromem-go store for
// development and tests.
package store
