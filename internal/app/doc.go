// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle
//
//	SCAN → DIFF → PLAN → (EXECUTE | DRY_RUN) → (COMMIT_MANIFEST | LEAVE_MANIFEST_STALE)
//
// decoupled from any specific entrypoint like a CLI.
package app
