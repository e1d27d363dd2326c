package graph

import "github.com/specialistvlad/incrbuild/internal/model"

// Graph answers which artifacts depend on a dataset tag.
type Graph interface {
	// ArtifactsFor returns the ordered artifacts of a tag, and false when the
	// tag is not part of the graph at all. A reference-only tag returns an
	// empty list and true.
	ArtifactsFor(dataset string) ([]model.Artifact, bool)

	// Datasets returns every tag of the graph in sorted order.
	Datasets() []string
}
