package sorting

// Order is the visual tri-state of one column header.
type Order string

const (
	Unsorted Order = "unsorted"
	Descend  Order = "descend"
	Ascend   Order = "ascend"
)

// Event drives the column state machine.
type Event string

const (
	EventClick Event = "click"
	EventClear Event = "clear"
)

type transition struct {
	from  Order
	event Event
}

var transitions = map[transition]Order{
	{Unsorted, EventClick}: Descend,
	{Descend, EventClick}:  Ascend,
	{Ascend, EventClick}:   Unsorted,
	{Unsorted, EventClear}: Unsorted,
	{Descend, EventClear}:  Unsorted,
	{Ascend, EventClear}:   Unsorted,
}

// Next returns the state reached from order on event.
func Next(order Order, event Event) (Order, bool) {
	next, ok := transitions[transition{order, event}]
	return next, ok
}

// ParseOrder maps table event strings; an empty value means unsorted.
func ParseOrder(raw string) (Order, bool) {
	switch Order(raw) {
	case Unsorted, "":
		return Unsorted, true
	case Descend:
		return Descend, true
	case Ascend:
		return Ascend, true
	}
	return "", false
}

func (o Order) valid() bool {
	return o == Unsorted || o == Descend || o == Ascend
}

func (o Order) direction() Direction {
	if o == Ascend {
		return ASC
	}
	return DESC
}

func orderFor(d Direction) Order {
	if d == ASC {
		return Ascend
	}
	return Descend
}
