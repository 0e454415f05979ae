// Package ingestion provides pipeline orchestration for adding support knowledge.
//
// The Pipeline type manages the ingestion workflow for documents, FAQs and
// tickets, including:
//   - Validating items and skipping content that is already stored
//   - Adding items to their source partition
//   - Generating embeddings asynchronously
//   - Re-embedding items whose content changed on update
//
// Embedding is performed concurrently using a worker pool. Items are
// searchable once their embedding is stored. Errors during async processing
// are logged but do not fail the ingestion operation; Wait blocks until all
// submitted work has finished.
package ingestion
