package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/render"
	"github.com/clubsite/server/internal/datepicker"
)

// Query parameters that carry a picker between requests. The values
// themselves travel as "value" (single) or "start" and "end" (range).
const (
	paramMode      = "dp_mode"
	paramShowTime  = "dp_time"
	paramAutoFill  = "dp_autofill"
	paramMin       = "dp_min"
	paramMax       = "dp_max"
	paramRequired  = "dp_required"
	paramDisabled  = "dp_disabled"
	paramLocale    = "dp_locale"
	paramOpen      = "dp_open"
	paramCursor    = "dp_cursor"
	paramMonth     = "dp_month"
	paramHover     = "dp_hover"
	paramValueTime = "dp_vt"
	paramStartTime = "dp_st"
	paramEndTime   = "dp_et"
	paramAction    = "dp_action"
	paramTimeValue = "dp_timeval"
)

var errUnknownAction = errors.New("unknown picker action")

// timeStep is the spacing of the time-of-day options.
const timeStep = 30 * time.Minute

type hiddenField struct {
	Name  string
	Value string
}

// Emission is one callback the picker fired while applying an action.
type Emission struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// pickerSession is a picker restored from a request together with the
// callbacks it fires.
type pickerSession struct {
	picker  *datepicker.Picker
	emitted []Emission
}

func (s *pickerSession) bind(props *datepicker.Props) {
	props.OnChange = func(v string) { s.emitted = append(s.emitted, Emission{Field: "value", Value: v}) }
	props.OnStartDateChange = func(v string) { s.emitted = append(s.emitted, Emission{Field: "start", Value: v}) }
	props.OnEndDateChange = func(v string) { s.emitted = append(s.emitted, Emission{Field: "end", Value: v}) }
}

// widgetProps reads the picker configuration carried in q.
func widgetProps(q url.Values) datepicker.Props {
	return datepicker.Props{
		Mode:            datepicker.ParseMode(q.Get(paramMode)),
		ShowTime:        flag(q.Get(paramShowTime)),
		AutoFillEndDate: flag(q.Get(paramAutoFill)),
		MinDate:         q.Get(paramMin),
		MaxDate:         q.Get(paramMax),
		Required:        flag(q.Get(paramRequired)),
		Disabled:        flag(q.Get(paramDisabled)),
		Locale:          q.Get(paramLocale),
	}
}

// restorePicker seeds a picker from props and the values in q, then puts
// back the interaction state of the previous round trip. Times are only
// restored when their parameter is present.
func restorePicker(props datepicker.Props, q url.Values) (*pickerSession, error) {
	props.Value = q.Get("value")
	props.StartDate = q.Get("start")
	props.EndDate = q.Get("end")

	s := &pickerSession{}
	s.bind(&props)
	s.picker = datepicker.New(props)

	state := s.picker.State()
	state.Open = flag(q.Get(paramOpen))
	state.Cursor = datepicker.Endpoint(q.Get(paramCursor))
	if raw := q.Get(paramMonth); raw != "" {
		month, err := datepicker.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", paramMonth, err)
		}
		state.Month = month
	}
	state.Hover = datepicker.Date{}
	if raw := q.Get(paramHover); raw != "" {
		hover, err := datepicker.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", paramHover, err)
		}
		state.Hover = hover
	}
	for _, t := range []struct {
		param string
		dst   *datepicker.TimeOfDay
	}{
		{paramValueTime, &state.ValueTime},
		{paramStartTime, &state.StartTime},
		{paramEndTime, &state.EndTime},
	} {
		raw := q.Get(t.param)
		if raw == "" {
			continue
		}
		tod, err := datepicker.ParseTimeOfDay(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.param, err)
		}
		*t.dst = tod
	}
	s.picker.Restore(state)
	return s, nil
}

// apply performs one "verb[:arg]" action. Picker rules that reject an
// action (a disabled day, a closed range cursor) are not errors; only
// malformed input is.
func (s *pickerSession) apply(action string, q url.Values) error {
	verb, arg, _ := strings.Cut(strings.TrimSpace(action), ":")
	p := s.picker
	switch verb {
	case "":
	case "open":
		p.Open()
	case "close":
		p.Close()
	case "toggle":
		p.Toggle()
	case "escape":
		p.Escape()
	case "outside":
		p.ClickOutside()
	case "done":
		p.Done()
	case "next":
		p.NextMonth()
	case "prev":
		p.PrevMonth()
	case "month":
		d, err := parseMonthArg(arg)
		if err != nil {
			return err
		}
		p.ShowMonth(d)
	case "select":
		d, err := datepicker.ParseDate(arg)
		if err != nil {
			return err
		}
		p.SelectDate(d)
	case "today":
		p.SelectToday()
	case "tomorrow":
		p.SelectTomorrow()
	case "cursor":
		p.SetCursor(datepicker.ParseEndpoint(arg))
	case "time":
		tod, err := datepicker.ParseTimeOfDay(q.Get(paramTimeValue))
		if err != nil {
			return err
		}
		if arg == "" {
			p.ChangeTime(tod)
		} else {
			p.SetTime(datepicker.ParseEndpoint(arg), tod)
		}
	case "clear":
		p.Clear()
	case "hover":
		d, err := datepicker.ParseDate(arg)
		if err != nil {
			return err
		}
		p.Hover(d)
	case "hoverend":
		p.HoverEnd()
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, verb)
	}
	return nil
}

// parseMonthArg accepts "YYYY-MM" or a full date.
func parseMonthArg(arg string) (datepicker.Date, error) {
	if t, err := time.Parse("2006-01", arg); err == nil {
		return datepicker.NewDate(t.Year(), t.Month(), 1), nil
	}
	return datepicker.ParseDate(arg)
}

// values returns the picker's current emitted values keyed by field name.
func (s *pickerSession) values() map[string]string {
	if s.picker.Mode() == datepicker.ModeRange {
		return map[string]string{"start": s.picker.FormattedStart(), "end": s.picker.FormattedEnd()}
	}
	return map[string]string{"value": s.picker.FormattedValue()}
}

// stateFields encodes the values and interaction state for the next
// round trip. withConfig also carries the configuration parameters.
func (s *pickerSession) stateFields(withConfig bool) []hiddenField {
	p := s.picker
	props := p.Props()
	var fields []hiddenField
	add := func(name, value string) {
		if value != "" {
			fields = append(fields, hiddenField{Name: name, Value: value})
		}
	}

	if withConfig {
		add(paramMode, string(p.Mode()))
		add(paramShowTime, boolParam(props.ShowTime))
		add(paramAutoFill, boolParam(props.AutoFillEndDate))
		add(paramMin, props.MinDate)
		add(paramMax, props.MaxDate)
		add(paramRequired, boolParam(props.Required))
		add(paramDisabled, boolParam(props.Disabled))
		add(paramLocale, props.Locale)
	}

	if p.Mode() == datepicker.ModeRange {
		fields = append(fields,
			hiddenField{Name: "start", Value: p.FormattedStart()},
			hiddenField{Name: "end", Value: p.FormattedEnd()},
		)
		add(paramCursor, string(p.Cursor()))
		add(paramStartTime, p.StartTime().String())
		add(paramEndTime, p.EndTime().String())
	} else {
		fields = append(fields, hiddenField{Name: "value", Value: p.FormattedValue()})
		add(paramValueTime, p.SelectedTime().String())
	}
	add(paramOpen, boolParam(p.IsOpen()))
	add(paramMonth, p.VisibleMonth().String())
	if h := p.Hovered(); !h.IsZero() {
		add(paramHover, h.String())
	}
	return fields
}

func (s *pickerSession) query(withConfig bool) string {
	q := url.Values{}
	for _, f := range s.stateFields(withConfig) {
		q.Set(f.Name, f.Value)
	}
	return q.Encode()
}

// pickerView is rendered by partials/datepicker.html.
type pickerView struct {
	Action     string
	Method     string
	Hidden     []hiddenField
	Open       bool
	Disabled   bool
	Required   bool
	Range      bool
	ShowTime   bool
	Label      string
	Error      string
	Display    string
	Cursor     string
	StartText  string
	EndText    string
	Labels     datepicker.Labels
	Grid       datepicker.MonthView
	Times      []string
	ActiveTime string
}

func (s *pickerSession) view(action string, withConfig bool) pickerView {
	p := s.picker
	props := p.Props()
	v := pickerView{
		Action:   action,
		Method:   "get",
		Hidden:   s.stateFields(withConfig),
		Open:     p.IsOpen(),
		Disabled: props.Disabled,
		Required: props.Required,
		Range:    p.Mode() == datepicker.ModeRange,
		ShowTime: props.ShowTime,
		Label:    props.Label,
		Error:    props.Error,
		Display:  p.DisplayText(),
		Cursor:   string(p.Cursor()),
		Labels:   p.Labels(),
	}
	if v.Open {
		v.Grid = p.Grid()
	}
	active := p.SelectedTime()
	if v.Range {
		v.StartText = p.FormattedStart()
		v.EndText = p.FormattedEnd()
		active = p.StartTime()
		if p.Cursor() == datepicker.EndpointEnd {
			active = p.EndTime()
		}
	}
	if v.ShowTime {
		v.ActiveTime = active.String()
		v.Times = timeOptions(active)
	}
	return v
}

// timeOptions lists the day in timeStep increments, plus active when it
// falls between steps.
func timeOptions(active datepicker.TimeOfDay) []string {
	var out []string
	seen := false
	for m := 0; m < 24*60; m += int(timeStep / time.Minute) {
		t := datepicker.TimeOfDay{Hour: m / 60, Minute: m % 60}
		if !seen && active.Hour*60+active.Minute < m {
			out = append(out, active.String())
			seen = true
		}
		if t == active {
			seen = true
		}
		out = append(out, t.String())
	}
	if !seen {
		out = append(out, active.String())
	}
	return out
}

func flag(raw string) bool {
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return ""
}

// DatePickerWidgetHandler serves GET /admin/widgets/datepicker: it restores
// a picker from the query, applies dp_action and renders the result.
type DatePickerWidgetHandler struct {
	renderer *render.Renderer
	loc      *time.Location
	now      func() time.Time
	env      string
}

func NewDatePickerWidgetHandler(renderer *render.Renderer, loc *time.Location, env string) *DatePickerWidgetHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DatePickerWidgetHandler{renderer: renderer, loc: loc, now: time.Now, env: env}
}

// PickerResponse is the JSON rendition of the widget.
type PickerResponse struct {
	Mode    string            `json:"mode"`
	Values  map[string]string `json:"values"`
	Emitted []Emission        `json:"emitted"`
	Display string            `json:"display"`
	Open    bool              `json:"open"`
	Cursor  string            `json:"cursor,omitempty"`
	Month   string            `json:"month"`
	State   string            `json:"state"`
}

func (h *DatePickerWidgetHandler) Widget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	props := widgetProps(q)
	props.Location = h.loc
	props.Now = h.now
	if props.Locale == "" {
		props.Locale = h.renderer.Site().Locale
	}
	props.Label = strings.TrimSpace(q.Get("label"))

	session, err := restorePicker(props, q)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if err := session.apply(q.Get(paramAction), q); err != nil {
		if errors.Is(err, errUnknownAction) {
			badRequest(w, r, err, h.env)
			return
		}
		writeError(w, r, err, h.env)
		return
	}

	if wantsJSON(r) {
		p := session.picker
		emitted := session.emitted
		if emitted == nil {
			emitted = []Emission{}
		}
		resp := PickerResponse{
			Mode:    string(p.Mode()),
			Values:  session.values(),
			Emitted: emitted,
			Display: p.DisplayText(),
			Open:    p.IsOpen(),
			Month:   p.VisibleMonth().String(),
			State:   session.query(true),
		}
		if p.Mode() == datepicker.ModeRange {
			resp.Cursor = string(p.Cursor())
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	page := h.page(r, session.view(r.URL.Path, true))
	if flag(q.Get("fragment")) {
		h.renderer.Fragment(w, r, http.StatusOK, "datepicker_widget", "fragment", page)
		return
	}
	h.renderer.HTML(w, r, http.StatusOK, "datepicker_widget", page)
}

func (h *DatePickerWidgetHandler) page(r *http.Request, v pickerView) render.Page {
	return render.Page{
		Title:     "Tarih seçici",
		Admin:     true,
		Actor:     middleware.ActorFrom(r.Context()),
		CSRFField: middleware.CSRFFieldName,
		CSRFToken: middleware.CSRFToken(r),
		Data:      v,
	}
}

// wantsJSON reports whether the client asked for JSON rather than HTML.
func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
