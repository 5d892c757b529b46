// Package datepicker implements the state machine behind the admin date and
// date-range picker: single-day or start/end selection with time-of-day,
// auto-filled end dates and disabled-day rules.
//
// A Picker is owned by one caller and is not safe for concurrent use. Every
// operation is a synchronous state transition; results are reported only as
// formatted strings through the callbacks in Props.
package datepicker

import (
	"time"

	"github.com/go-playground/locales"
)

type Mode string

const (
	ModeSingle Mode = "single"
	ModeRange  Mode = "range"
)

// ParseMode maps unknown values to ModeSingle.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeRange:
		return ModeRange
	case ModeSingle:
		return ModeSingle
	default:
		return ModeSingle
	}
}

// Endpoint names which end of a range the next click sets.
type Endpoint string

const (
	EndpointStart Endpoint = "start"
	EndpointEnd   Endpoint = "end"
)

func ParseEndpoint(s string) Endpoint {
	if Endpoint(s) == EndpointEnd {
		return EndpointEnd
	}
	return EndpointStart
}

// Props is the picker's configuration surface. Mode is fixed for the life of
// a Picker; Sync ignores later changes to it.
type Props struct {
	Mode Mode

	// single mode
	Value    string
	OnChange func(string)

	// range mode
	StartDate         string
	EndDate           string
	OnStartDateChange func(string)
	OnEndDateChange   func(string)

	ShowTime        bool
	MinDate         string // YYYY-MM-DD, optional
	MaxDate         string // YYYY-MM-DD, optional
	AutoFillEndDate bool
	Required        bool
	Disabled        bool
	Label           string
	Placeholder     string
	Error           string

	Locale   string         // "tr" (default) or "en"
	Location *time.Location // defaults to time.Local
	Now      func() time.Time
}

// Picker holds the selection state of one widget instance.
type Picker struct {
	props Props
	mode  Mode
	tr    locales.Translator

	open   bool
	cursor Endpoint
	month  Date
	hover  Date

	min Date
	max Date

	value     Date
	valueTime TimeOfDay

	start     Date
	startTime TimeOfDay
	end       Date
	endTime   TimeOfDay
}

// New creates a picker seeded from props.
func New(props Props) *Picker {
	mode := props.Mode
	if mode != ModeRange {
		mode = ModeSingle
	}
	p := &Picker{
		mode:      mode,
		cursor:    EndpointStart,
		valueTime: DefaultStartTime,
		startTime: DefaultStartTime,
		endTime:   DefaultEndTime,
	}
	p.Sync(props)
	return p
}

// Sync re-seeds selected values from props. Interaction state (open, cursor,
// visible month) is kept so that controlled callers can feed emitted values
// straight back in. An empty value clears the date but keeps its time.
func (p *Picker) Sync(props Props) {
	if props.Now == nil {
		props.Now = time.Now
	}
	if props.Location == nil {
		props.Location = time.Local
	}
	p.props = props
	p.tr = translator(props.Locale)
	p.min, _ = ParseDate(props.MinDate)
	p.max, _ = ParseDate(props.MaxDate)

	switch p.mode {
	case ModeRange:
		p.start, p.startTime = seed(props.StartDate, p.startTime)
		p.end, p.endTime = seed(props.EndDate, p.endTime)
		if !p.start.IsZero() && !p.end.IsZero() && p.end.Before(p.start) {
			p.end = p.start
		}
	case ModeSingle:
		p.value, p.valueTime = seed(props.Value, p.valueTime)
	}

	if p.month.IsZero() {
		p.month = p.anchor().FirstOfMonth()
	}
	if props.Disabled {
		p.open = false
	}
}

func seed(raw string, current TimeOfDay) (Date, TimeOfDay) {
	v, err := ParseValue(raw)
	if err != nil || v.Date.IsZero() {
		return Date{}, current
	}
	if v.HasTime {
		return v.Date, v.Time
	}
	return v.Date, current
}

// anchor is the day the visible month is opened on.
func (p *Picker) anchor() Date {
	switch {
	case p.mode == ModeSingle && !p.value.IsZero():
		return p.value
	case p.mode == ModeRange && !p.start.IsZero():
		return p.start
	case p.mode == ModeRange && !p.end.IsZero():
		return p.end
	case !p.min.IsZero() && p.min.After(p.Today()):
		return p.min
	default:
		return p.Today()
	}
}

// Today is the current day in the picker's location.
func (p *Picker) Today() Date {
	return DateOf(p.props.Now().In(p.props.Location))
}

func (p *Picker) Mode() Mode              { return p.mode }
func (p *Picker) Props() Props            { return p.props }
func (p *Picker) IsOpen() bool            { return p.open }
func (p *Picker) Cursor() Endpoint        { return p.cursor }
func (p *Picker) VisibleMonth() Date      { return p.month }
func (p *Picker) Hovered() Date           { return p.hover }
func (p *Picker) SelectedDate() Date      { return p.value }
func (p *Picker) SelectedTime() TimeOfDay { return p.valueTime }
func (p *Picker) Start() Date             { return p.start }
func (p *Picker) StartTime() TimeOfDay    { return p.startTime }
func (p *Picker) End() Date               { return p.end }
func (p *Picker) EndTime() TimeOfDay      { return p.endTime }

// FormattedValue is the string OnChange would receive now.
func (p *Picker) FormattedValue() string {
	return FormatValue(p.value, p.valueTime, p.props.ShowTime)
}

func (p *Picker) FormattedStart() string {
	return FormatValue(p.start, p.startTime, p.props.ShowTime)
}

func (p *Picker) FormattedEnd() string {
	return FormatValue(p.end, p.endTime, p.props.ShowTime)
}

// Open shows the popover. A disabled picker never opens.
func (p *Picker) Open() bool {
	if p.props.Disabled {
		return false
	}
	p.open = true
	return true
}

func (p *Picker) Close() {
	p.open = false
	p.hover = Date{}
}

// Toggle flips the popover, as clicking the trigger button does.
func (p *Picker) Toggle() bool {
	if p.open {
		p.Close()
		return true
	}
	return p.Open()
}

func (p *Picker) Escape()       { p.Close() }
func (p *Picker) ClickOutside() { p.Close() }

// Done closes the popover; the "Tamam" button.
func (p *Picker) Done() { p.Close() }

func (p *Picker) NextMonth() { p.month = p.month.AddMonths(1) }
func (p *Picker) PrevMonth() { p.month = p.month.AddMonths(-1) }

// ShowMonth jumps the visible page to d's month.
func (p *Picker) ShowMonth(d Date) {
	if d.IsZero() {
		return
	}
	p.month = d.FirstOfMonth()
}

// IsDisabled reports whether clicking d is a no-op.
func (p *Picker) IsDisabled(d Date) bool {
	switch {
	case p.props.Disabled:
		return true
	case d.Before(p.Today()):
		return true
	case !p.min.IsZero() && d.Before(p.min):
		return true
	case !p.max.IsZero() && d.After(p.max):
		return true
	case p.mode == ModeRange && p.cursor == EndpointEnd && !p.start.IsZero() && d.Before(p.start):
		return true
	default:
		return false
	}
}

// SelectDate applies a click on day d. It returns false, and fires no
// callback, when d is disabled.
func (p *Picker) SelectDate(d Date) bool {
	if d.IsZero() || p.IsDisabled(d) {
		return false
	}
	p.hover = Date{}
	p.ShowMonth(d)

	switch p.mode {
	case ModeRange:
		p.selectRange(d)
	case ModeSingle:
		p.value = d
		p.emitValue()
	}
	return true
}

func (p *Picker) selectRange(d Date) {
	switch p.cursor {
	case EndpointEnd:
		p.end = d
		p.emitEnd()
	case EndpointStart:
		p.start = d
		p.emitStart()
		switch {
		case p.end.IsZero() && p.props.AutoFillEndDate:
			p.end = d
			p.cursor = EndpointEnd
			p.emitEnd()
		case !p.end.IsZero() && p.end.Before(d):
			p.end = d
			p.emitEnd()
		}
	}
}

// SelectToday selects the current day.
func (p *Picker) SelectToday() bool {
	return p.SelectDate(p.Today())
}

func (p *Picker) SelectTomorrow() bool {
	return p.SelectDate(p.Today().AddDays(1))
}

// SetCursor chooses which endpoint the next click sets. Range mode only.
func (p *Picker) SetCursor(e Endpoint) bool {
	if p.mode != ModeRange {
		return false
	}
	if e != EndpointEnd {
		e = EndpointStart
	}
	p.cursor = e
	p.hover = Date{}
	return true
}

// ChangeTime sets the time-of-day of the active endpoint (the value itself in
// single mode, the cursor's endpoint in range mode).
func (p *Picker) ChangeTime(t TimeOfDay) bool {
	if p.mode == ModeSingle {
		return p.SetTime(EndpointStart, t)
	}
	return p.SetTime(p.cursor, t)
}

// SetTime sets the time-of-day of endpoint e and re-emits that endpoint if it
// already has a date. The opposite endpoint is never touched. In single mode
// e is ignored.
func (p *Picker) SetTime(e Endpoint, t TimeOfDay) bool {
	if p.props.Disabled || !t.Valid() {
		return false
	}
	if p.mode == ModeSingle {
		p.valueTime = t
		if !p.value.IsZero() && p.props.ShowTime {
			p.emitValue()
		}
		return true
	}

	switch e {
	case EndpointEnd:
		p.endTime = t
		if !p.end.IsZero() && p.props.ShowTime {
			p.emitEnd()
		}
	default:
		p.startTime = t
		if !p.start.IsZero() && p.props.ShowTime {
			p.emitStart()
		}
	}
	return true
}

// Clear resets every date and time and emits empty strings.
func (p *Picker) Clear() {
	p.hover = Date{}
	switch p.mode {
	case ModeRange:
		p.start, p.end = Date{}, Date{}
		p.startTime, p.endTime = DefaultStartTime, DefaultEndTime
		p.cursor = EndpointStart
		p.emitStart()
		p.emitEnd()
	case ModeSingle:
		p.value = Date{}
		p.valueTime = DefaultStartTime
		p.emitValue()
	}
}

// Hover previews the range that clicking d would commit. It only applies in
// range mode while the end cursor is active, a start is chosen and no end is
// committed yet. It never changes the selection.
func (p *Picker) Hover(d Date) bool {
	if p.mode != ModeRange || p.cursor != EndpointEnd || p.start.IsZero() || !p.end.IsZero() {
		return false
	}
	if d.IsZero() || p.IsDisabled(d) {
		return false
	}
	p.hover = d
	return true
}

func (p *Picker) HoverEnd() { p.hover = Date{} }

func (p *Picker) inPreview(d Date) bool {
	if p.hover.IsZero() || p.start.IsZero() || !p.end.IsZero() {
		return false
	}
	return !d.Before(p.start) && !d.After(p.hover)
}

func (p *Picker) emitValue() {
	if p.props.OnChange != nil {
		p.props.OnChange(p.FormattedValue())
	}
}

func (p *Picker) emitStart() {
	if p.props.OnStartDateChange != nil {
		p.props.OnStartDateChange(p.FormattedStart())
	}
}

func (p *Picker) emitEnd() {
	if p.props.OnEndDateChange != nil {
		p.props.OnEndDateChange(p.FormattedEnd())
	}
}
