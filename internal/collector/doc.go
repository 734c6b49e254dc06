// Package collector extracts conversational messages from rendered chat pages.
//
// A page is a dom.Document. The Pipeline locates message nodes with a
// Matcher, assigns each one a speaker with a Classifier, splits aggregated
// blobs with the Segmenter and drops anything already seen according to the
// Dedup store. New messages are persisted and handed to a Relay as a Batch.
//
// Full scans run over a whole document. Incremental scans run over nodes
// reported as inserted, batched by an Observer with a short debounce window.
package collector
