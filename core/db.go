package core

// DBOrdering is a sort directive bound from the API's `ordering` query
// parameter and translated to an ORDER BY clause by the storage layer.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
