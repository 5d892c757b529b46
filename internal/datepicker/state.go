package datepicker

// State is the interaction state that is not carried by the emitted values.
// Server-rendered widgets round-trip it through the form between requests.
type State struct {
	Open      bool
	Cursor    Endpoint
	Month     Date
	Hover     Date
	ValueTime TimeOfDay
	StartTime TimeOfDay
	EndTime   TimeOfDay
}

func (p *Picker) State() State {
	return State{
		Open:      p.open,
		Cursor:    p.cursor,
		Month:     p.month,
		Hover:     p.hover,
		ValueTime: p.valueTime,
		StartTime: p.startTime,
		EndTime:   p.endTime,
	}
}

// Restore applies s on top of the seeded values. Invalid parts are ignored.
// Times carried by the seeded values win over those in s.
func (p *Picker) Restore(s State) {
	p.open = s.Open && !p.props.Disabled
	if p.mode == ModeRange {
		p.cursor = ParseEndpoint(string(s.Cursor))
	}
	if !s.Month.IsZero() {
		p.month = s.Month.FirstOfMonth()
	}

	if p.value.IsZero() && s.ValueTime.Valid() {
		p.valueTime = s.ValueTime
	}
	if p.start.IsZero() && s.StartTime.Valid() {
		p.startTime = s.StartTime
	}
	if p.end.IsZero() && s.EndTime.Valid() {
		p.endTime = s.EndTime
	}

	p.hover = Date{}
	if !s.Hover.IsZero() {
		p.Hover(s.Hover)
	}
}
