package hcl

// fileRoot decodes every top-level construct of a pipeline file.
type fileRoot struct {
	TrackedExtensions []string        `hcl:"tracked_extensions,optional"`
	CommandTimeout    *string         `hcl:"command_timeout,optional"`
	Stages            []*stageBlock   `hcl:"stage,block"`
	Datasets          []*datasetBlock `hcl:"dataset,block"`
}

type stageBlock struct {
	Name   string `hcl:"name,label"`
	Number int    `hcl:"number"`
}

type datasetBlock struct {
	Tag           string           `hcl:"tag,label"`
	Patterns      []string         `hcl:"patterns,optional"`
	ReferenceOnly bool             `hcl:"reference_only,optional"`
	Artifacts     []*artifactBlock `hcl:"artifact,block"`
}

type artifactBlock struct {
	Name    string `hcl:"name,label"`
	Stage   int    `hcl:"stage"`
	Command string `hcl:"command"`
}
