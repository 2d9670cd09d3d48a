package checkpoint

import "github.com/google/uuid"

// ParseUUID parses a string to UUID, returning the zero UUID on error.
func ParseUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

// StateProviderFunc adapts a plain function to the StateProvider interface.
type StateProviderFunc func() (*State, error)

// CheckpointState implements StateProvider.
func (f StateProviderFunc) CheckpointState() (*State, error) {
	return f()
}
