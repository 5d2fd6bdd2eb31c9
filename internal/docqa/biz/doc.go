// Package biz implements the docqa use cases: upload bookkeeping, the
// ingestion state machine, and the rewrite, retrieve and answer chat flow.
package biz
