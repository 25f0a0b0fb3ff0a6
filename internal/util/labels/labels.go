package labels

// Standard metadata keys.
const (
	// KeyRun identifies the run (its timestamp) a server belongs to
	KeyRun = "pipeman.io/run"

	// KeyRunID is the uuid of the run that created the server
	KeyRunID = "pipeman.io/run-id"

	// KeyRole identifies the role of a server (installer, node)
	KeyRole = "pipeman.io/role"

	// KeyArch is the host architecture
	KeyArch = "pipeman.io/arch"

	// KeyManagedBy identifies the management system
	KeyManagedBy = "pipeman.io/managed-by"
)

// Role values
const (
	RoleInstaller = "installer"
	RoleNode      = "node"
)

// ManagedByPipeman is the KeyManagedBy value of every server pipeman creates.
const ManagedByPipeman = "pipeman"

// LabelBuilder provides a fluent interface for building server metadata.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a new label builder with the run pre-set.
func NewLabelBuilder(run string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyRun:       run,
			KeyManagedBy: ManagedByPipeman,
		},
	}
}

// WithRole adds a role label.
func (lb *LabelBuilder) WithRole(role string) *LabelBuilder {
	lb.labels[KeyRole] = role
	return lb
}

// WithArch adds the architecture label.
func (lb *LabelBuilder) WithArch(arch string) *LabelBuilder {
	lb.labels[KeyArch] = arch
	return lb
}

// WithRunIDIfSet adds the run id only if it is non-empty.
func (lb *LabelBuilder) WithRunIDIfSet(id string) *LabelBuilder {
	if id != "" {
		lb.labels[KeyRunID] = id
	}
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// SelectorForRun returns a metadata filter matching all servers of a run.
func SelectorForRun(run string) string {
	return KeyRun + "=" + run
}
