package ai

import "context"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message sent to a model.
type Turn struct {
	Role Role
	Text string
}

// Image is attached to the last turn of a Request.
type Image struct {
	Data     []byte
	MIMEType string
}

// Schema describes a JSON response shape. Type uses the OpenAPI names
// (OBJECT, STRING, NUMBER).
type Schema struct {
	Type        string
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Required    []string
}

// Request is a provider-neutral generation request.
type Request struct {
	System string
	Turns  []Turn
	Image  *Image
	// JSON asks for a JSON object response, shaped by Schema when set.
	JSON   bool
	Schema *Schema
}

// Model generates text for a Request.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}
