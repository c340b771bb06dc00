package dnn

// Resource indexes the buffers handed to Primitive.Execute.
type Resource int

// Resource slots. From/To alias Src/Dst for conversions.
const (
	ResourceSrc Resource = iota
	ResourceDst
	ResourceFilter
	ResourceBias
	ResourceDiffSrc
	ResourceDiffFilter
	ResourceDiffBias
	ResourceDiffDst
	ResourceWorkspace

	ResourceNumber

	ResourceFrom = ResourceSrc
	ResourceTo   = ResourceDst
)

var resourceNames = [ResourceNumber]string{
	ResourceSrc:        "src",
	ResourceDst:        "dst",
	ResourceFilter:     "filter",
	ResourceBias:       "bias",
	ResourceDiffSrc:    "diff_src",
	ResourceDiffFilter: "diff_filter",
	ResourceDiffBias:   "diff_bias",
	ResourceDiffDst:    "diff_dst",
	ResourceWorkspace:  "workspace",
}

// String returns the resource name.
func (r Resource) String() string {
	if r < 0 || r >= ResourceNumber {
		return "unknown"
	}
	return resourceNames[r]
}

// Resources binds one buffer per resource slot for a single execution.
type Resources [ResourceNumber][]float32
