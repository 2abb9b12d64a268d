package modkit

// OnEvent marks a controller method as a handler for CloudEvents of Type.
// The type "*" matches every event.
//
//	func (c *AuditController) DeclareAttributes(d *attribute.Declarations) {
//		d.Method("Record", modkit.OnEvent{Type: modkit.EventTypeServiceStarted})
//	}
type OnEvent struct {
	Type string
}

// AttributeName implements attribute.Attribute.
func (OnEvent) AttributeName() string { return "OnEvent" }

// Matches reports whether the attribute selects events of eventType.
func (a OnEvent) Matches(eventType string) bool {
	return a.Type == "*" || a.Type == eventType
}

// HandlesRequest marks a controller method as the handler of the named
// request.
type HandlesRequest struct {
	Name string
}

// AttributeName implements attribute.Attribute.
func (HandlesRequest) AttributeName() string { return "HandlesRequest" }
