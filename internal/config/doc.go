// Package config defines the format-agnostic configuration of an incremental
// build: the pipeline (tracked extensions, stage names, datasets with their
// classification patterns and dependent artifacts) and the per-project paths
// file that locates the source corpus and the manifest.
//
// The Pipeline model is the single source of truth for the classify and
// graph packages. Concrete pipeline formats, such as HCL, are provided in
// separate packages that implement Loader.
package config
