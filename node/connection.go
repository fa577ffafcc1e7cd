package node

// Connection is a directed edge from an output port of one node to an input
// port of another.
type Connection struct {
	ID           string
	SourceID     string
	SourceOutput string
	TargetID     string
	TargetInput  string
}

// Endpoints identifies a connection by the ports it links. No two
// connections of a graph share the same endpoints.
type Endpoints struct {
	SourceID     string
	SourceOutput string
	TargetID     string
	TargetInput  string
}

// Endpoints returns the port tuple of the connection.
func (c Connection) Endpoints() Endpoints {
	return Endpoints{
		SourceID:     c.SourceID,
		SourceOutput: c.SourceOutput,
		TargetID:     c.TargetID,
		TargetInput:  c.TargetInput,
	}
}

// Touches returns true if the connection starts or ends at node id.
func (c Connection) Touches(id string) bool {
	return c.SourceID == id || c.TargetID == id
}
