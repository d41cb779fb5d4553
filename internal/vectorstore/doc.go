// Package vectorstore holds the vector store backends used by the ingest and
// query services: memory for local runs and tests, postgres (pgvector) for
// deployments. Both rank matches by cosine similarity, highest first.
package vectorstore
