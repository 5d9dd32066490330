// Package storage implements the vector-store collection used by the document
// assistant. A collection holds embedded text chunks with string metadata and
// answers cosine-similarity queries. Backends: in-memory, a bbolt file, and
// Redis.
package storage
