package model

// Citation is a reference found in the text of a provision.
//
// Target is nil when the reference could not be resolved to a provision in
// the archive; such citations are kept as dangling edges. Offset is the byte
// offset of Raw within the citing unit's Body.
type Citation struct {
	Source Key    `json:"source"`
	Target *Key   `json:"target,omitempty"`
	Raw    string `json:"raw"`
	Offset int    `json:"offset"`
}

// Resolved reports whether the citation points at a known provision.
func (c Citation) Resolved() bool {
	return c.Target != nil
}
