// Package hcl provides the concrete HCL implementation of config.Loader. It
// is responsible for pipeline file discovery, parsing, expression evaluation
// and translation into the format-agnostic config.Pipeline.
//
// A pipeline file looks like:
//
//	tracked_extensions = [".xlsx", ".csv", ".pdf"]
//	command_timeout    = "30m"
//
//	stage "curate" { number = 1 }
//
//	dataset "PERM" {
//	  patterns = ["PERM"]
//	  artifact "fact_perm/" {
//	    stage   = 1
//	    command = "python3 -m src.curate.run_curate --data-root {source_root}"
//	  }
//	}
//
// Expressions may read the process environment through `env` and call a
// small set of string functions (upper, lower, join, format, trimspace,
// concat, coalesce).
package hcl
