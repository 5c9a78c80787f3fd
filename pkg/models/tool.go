package models

// ToolDescriptor is the canonical, immutable-after-registration record the
// Tool Registry holds for one tool name (§3, §4.1).
//
// The handler is not part of this struct; internal/registry binds it
// alongside the descriptor so that pkg/models stays free of the
// registry's dispatch machinery.
type ToolDescriptor struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Schema         []byte `json:"schema"` // raw JSON Schema document
	Sandbox        bool   `json:"sandbox"`
	Parallelizable bool   `json:"parallelizable"`
}

// Equal reports whether two descriptors are identical in every
// registration-relevant field, used to make re-registration idempotent
// for identical descriptors and an error for conflicting ones (§4.1).
func (d ToolDescriptor) Equal(other ToolDescriptor) bool {
	return d.Name == other.Name &&
		d.Description == other.Description &&
		string(d.Schema) == string(other.Schema) &&
		d.Sandbox == other.Sandbox &&
		d.Parallelizable == other.Parallelizable
}
