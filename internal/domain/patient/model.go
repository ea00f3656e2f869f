package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type ComplianceStatus string

const (
	ComplianceLow    ComplianceStatus = "Low"
	ComplianceMedium ComplianceStatus = "Medium"
	ComplianceHigh   ComplianceStatus = "High"
)

func (s ComplianceStatus) Valid() bool {
	switch s {
	case ComplianceLow, ComplianceMedium, ComplianceHigh:
		return true
	}
	return false
}

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPending   GoalStatus = "pending"
)

func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalCompleted, GoalPending:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

const (
	DefaultComplianceScore = 50
	DefaultNoteAuthor      = "Provider"
	MaxNoteLength          = 5000
)

// Patient is the root record. The four sequences are nil when the record
// was loaded as a list summary and non-nil (possibly empty) when loaded in full.
type Patient struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone"`
	ComplianceStatus ComplianceStatus `json:"complianceStatus"`
	ComplianceScore  int              `json:"complianceScore"`
	AssignedDate     time.Time        `json:"assignedDate"`
	Goals            []Goal           `json:"goals"`
	DailyLogs        []DailyLog       `json:"dailyLogs"`
	Reminders        []Reminder       `json:"reminders"`
	ComplianceNotes  []ComplianceNote `json:"complianceNotes"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	Version          int              `json:"-"`
}

// UnmarshalJSON decodes a patient strictly. An absent complianceScore
// takes DefaultComplianceScore.
func (p *Patient) UnmarshalJSON(data []byte) error {
	type plain Patient
	v := plain{ComplianceScore: DefaultComplianceScore}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*p = Patient(v)
	return nil
}

type Goal struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	TargetValue  float64    `json:"targetValue"`
	CurrentValue float64    `json:"currentValue"`
	Unit         string     `json:"unit"`
	Deadline     time.Time  `json:"deadline"`
	Status       GoalStatus `json:"status"`
}

type DailyLog struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Steps      int       `json:"steps"`
	SleepHours float64   `json:"sleepHours"`
	Notes      string    `json:"notes,omitempty"`
}

type Reminder struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
	Completed   bool      `json:"completed"`
	Priority    Priority  `json:"priority"`
}

type ComplianceNote struct {
	ID        string    `json:"id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

var (
	ErrNotFound   = errors.New("patient not found")
	ErrInvalidID  = errors.New("invalid patient id")
	ErrEmailTaken = errors.New("patient email already exists")
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes a rejected input. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var validate = validator.New()

// ApplyDefaults fills the defaults of a new record.
func (p *Patient) ApplyDefaults(now time.Time) {
	if p.ComplianceStatus == "" {
		p.ComplianceStatus = ComplianceMedium
	}
	if p.AssignedDate.IsZero() {
		p.AssignedDate = now
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	for i := range p.Goals {
		if p.Goals[i].Status == "" {
			p.Goals[i].Status = GoalActive
		}
	}
	for i := range p.Reminders {
		if p.Reminders[i].Priority == "" {
			p.Reminders[i].Priority = PriorityMedium
		}
	}
	for i := range p.ComplianceNotes {
		n := &p.ComplianceNotes[i]
		if strings.TrimSpace(n.CreatedBy) == "" {
			n.CreatedBy = DefaultNoteAuthor
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
	}
}

// Validate checks a record before it is stored.
func (p *Patient) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "name is required")
	}
	if err := validate.Var(p.Email, "required,email"); err != nil {
		return invalid("email", "email must be a valid email address")
	}
	if strings.TrimSpace(p.Phone) == "" {
		return invalid("phone", "phone is required")
	}
	if !p.ComplianceStatus.Valid() {
		return invalid("complianceStatus", "complianceStatus must be one of: Low, Medium, High")
	}
	if p.ComplianceScore < 0 || p.ComplianceScore > 100 {
		return invalid("complianceScore", "complianceScore must be between 0 and 100")
	}

	for i, g := range p.Goals {
		switch {
		case strings.TrimSpace(g.Title) == "":
			return invalid("goals", "goals[%d].title is required", i)
		case strings.TrimSpace(g.Description) == "":
			return invalid("goals", "goals[%d].description is required", i)
		case strings.TrimSpace(g.Unit) == "":
			return invalid("goals", "goals[%d].unit is required", i)
		case g.Deadline.IsZero():
			return invalid("goals", "goals[%d].deadline is required", i)
		case !g.Status.Valid():
			return invalid("goals", "goals[%d].status must be one of: active, completed, pending", i)
		}
	}
	for i, l := range p.DailyLogs {
		if l.Date.IsZero() {
			return invalid("dailyLogs", "dailyLogs[%d].date is required", i)
		}
		if l.Steps < 0 || l.SleepHours < 0 {
			return invalid("dailyLogs", "dailyLogs[%d] values must not be negative", i)
		}
	}
	for i, r := range p.Reminders {
		switch {
		case strings.TrimSpace(r.Title) == "":
			return invalid("reminders", "reminders[%d].title is required", i)
		case strings.TrimSpace(r.Description) == "":
			return invalid("reminders", "reminders[%d].description is required", i)
		case r.DueDate.IsZero():
			return invalid("reminders", "reminders[%d].dueDate is required", i)
		case !r.Priority.Valid():
			return invalid("reminders", "reminders[%d].priority must be one of: low, medium, high", i)
		}
	}
	for i, n := range p.ComplianceNotes {
		if strings.TrimSpace(n.Note) == "" {
			return invalid("complianceNotes", "complianceNotes[%d].note is required", i)
		}
	}
	return nil
}

// ListFilter narrows a patient listing. Zero values mean no restriction.
type ListFilter struct {
	Search     string
	Compliance ComplianceStatus
	Limit      int
	Offset     int
}

// ParseComplianceFilter maps the ?compliance= query value to a filter.
// "" and "All" mean no filter.
func ParseComplianceFilter(raw string) (ComplianceStatus, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "All") {
		return "", nil
	}
	s := ComplianceStatus(raw)
	if !s.Valid() {
		return "", invalid("compliance", "compliance must be one of: All, Low, Medium, High")
	}
	return s, nil
}

// Matches reports whether p passes the filter's search and compliance terms.
func (f ListFilter) Matches(p *Patient) bool {
	if f.Compliance != "" && p.ComplianceStatus != f.Compliance {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Email), q)
	}
	return true
}
