package models

// Slide roles, in the order formats usually sequence them.
const (
	RoleHook    = "hook"
	RoleBody    = "body"
	RoleExample = "example"
	RoleRecap   = "recap"
	RoleCTA     = "cta"
)

// Content is the structured draft the generator collaborator returns. The
// validate tags are the contract: anything that fails them is replaced by a
// fallback draft rather than stored half-valid.
type Content struct {
	Title    string   `json:"title" validate:"required,min=3,max=120"`
	Hook     string   `json:"hook" validate:"required,max=200"`
	Slides   []Slide  `json:"slides" validate:"required,min=1,max=12,dive"`
	Caption  string   `json:"caption" validate:"max=500"`
	Tags     []string `json:"tags" validate:"max=10,dive,min=1,max=30"`
	Fallback bool     `json:"fallback,omitempty"`
}

type Slide struct {
	Role string `json:"role" validate:"required,oneof=hook body example recap cta"`
	Text string `json:"text" validate:"required,max=400"`
}
