// Package ingest defines the error taxonomy shared by the ingestion
// pipeline. Every failure is captured at the smallest unit (file, folder,
// run) and converted into a typed error plus an audit log entry; the
// sentinels here are what callers branch on to decide whether siblings
// continue.
package ingest
