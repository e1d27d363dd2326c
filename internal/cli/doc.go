// Package cli turns command-line flags into an app.Config, runs the build or
// history command, and maps every failure onto a process exit code: 2 for
// usage and configuration problems, 1 when a rebuild command failed.
package cli
