package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a status an order may be set to. Any valid
// status may be set from any other, including itself.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}
