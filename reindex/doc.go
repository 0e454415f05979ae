// Package reindex re-embeds stored knowledge items, for example after the
// embedding model changed.
//
// Items of each source kind are traversed in ID order in fixed-size batches.
// Each batch is embedded with retry and exponential backoff, normalized to
// unit length and written back. Progress is checkpointed after every batch,
// so an interrupted run resumes where it stopped.
package reindex
