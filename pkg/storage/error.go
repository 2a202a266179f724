package storage

// NotFoundError is returned when a node doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "node not found"
	}

	return "node not found: " + e.ID
}

// AlreadyExistsError is returned by Insert when the id is already stored.
type AlreadyExistsError struct {
	ID string
}

func (e AlreadyExistsError) Error() string {
	return "node already exists: " + e.ID
}
