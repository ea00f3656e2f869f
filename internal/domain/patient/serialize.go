package patient

import "time"

// ISOTime is the wire format of every timestamp: UTC, millisecond precision.
const ISOTime = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(ISOTime)
}

// PatientView is the external JSON shape of a patient. A nil sequence
// pointer drops the key, a pointer to an empty slice renders [].
type PatientView struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Email            string                `json:"email"`
	Phone            string                `json:"phone"`
	ComplianceStatus string                `json:"complianceStatus"`
	ComplianceScore  int                   `json:"complianceScore"`
	AssignedDate     string                `json:"assignedDate"`
	Goals            *[]GoalView           `json:"goals,omitempty"`
	DailyLogs        *[]DailyLogView       `json:"dailyLogs,omitempty"`
	Reminders        *[]ReminderView       `json:"reminders,omitempty"`
	ComplianceNotes  *[]ComplianceNoteView `json:"complianceNotes,omitempty"`
	CreatedAt        string                `json:"createdAt"`
	UpdatedAt        string                `json:"updatedAt"`
}

type GoalView struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	TargetValue  float64 `json:"targetValue"`
	CurrentValue float64 `json:"currentValue"`
	Unit         string  `json:"unit"`
	Deadline     string  `json:"deadline"`
	Status       string  `json:"status"`
}

type DailyLogView struct {
	ID         string  `json:"id"`
	Date       string  `json:"date"`
	Steps      int     `json:"steps"`
	SleepHours float64 `json:"sleepHours"`
	Notes      string  `json:"notes,omitempty"`
}

type ReminderView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Completed   bool   `json:"completed"`
	Priority    string `json:"priority"`
}

type ComplianceNoteView struct {
	ID        string `json:"id"`
	Note      string `json:"note"`
	CreatedAt string `json:"createdAt"`
	CreatedBy string `json:"createdBy"`
}

// NoteView is the response to a compliance note append.
type NoteView struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	Note      string `json:"note"`
	CreatedAt string `json:"createdAt"`
	CreatedBy string `json:"createdBy"`
}

// Serialize converts a stored record into its external shape. It allocates
// a new value and never touches p.
func Serialize(p *Patient) PatientView {
	v := PatientView{
		ID:               p.ID,
		Name:             p.Name,
		Email:            p.Email,
		Phone:            p.Phone,
		ComplianceStatus: string(p.ComplianceStatus),
		ComplianceScore:  p.ComplianceScore,
		AssignedDate:     formatTime(p.AssignedDate),
		CreatedAt:        formatTime(p.CreatedAt),
		UpdatedAt:        formatTime(p.UpdatedAt),
	}

	if p.Goals != nil {
		goals := make([]GoalView, len(p.Goals))
		for i, g := range p.Goals {
			goals[i] = GoalView{
				ID:           g.ID,
				Title:        g.Title,
				Description:  g.Description,
				TargetValue:  g.TargetValue,
				CurrentValue: g.CurrentValue,
				Unit:         g.Unit,
				Deadline:     formatTime(g.Deadline),
				Status:       string(g.Status),
			}
		}
		v.Goals = &goals
	}
	if p.DailyLogs != nil {
		logs := make([]DailyLogView, len(p.DailyLogs))
		for i, l := range p.DailyLogs {
			logs[i] = DailyLogView{
				ID:         l.ID,
				Date:       formatTime(l.Date),
				Steps:      l.Steps,
				SleepHours: l.SleepHours,
				Notes:      l.Notes,
			}
		}
		v.DailyLogs = &logs
	}
	if p.Reminders != nil {
		reminders := make([]ReminderView, len(p.Reminders))
		for i, r := range p.Reminders {
			reminders[i] = ReminderView{
				ID:          r.ID,
				Title:       r.Title,
				Description: r.Description,
				DueDate:     formatTime(r.DueDate),
				Completed:   r.Completed,
				Priority:    string(r.Priority),
			}
		}
		v.Reminders = &reminders
	}
	if p.ComplianceNotes != nil {
		notes := make([]ComplianceNoteView, len(p.ComplianceNotes))
		for i, n := range p.ComplianceNotes {
			notes[i] = ComplianceNoteView{
				ID:        n.ID,
				Note:      n.Note,
				CreatedAt: formatTime(n.CreatedAt),
				CreatedBy: n.CreatedBy,
			}
		}
		v.ComplianceNotes = &notes
	}
	return v
}

// SerializeAll converts a listing; an empty listing renders as [].
func SerializeAll(ps []*Patient) []PatientView {
	out := make([]PatientView, 0, len(ps))
	for _, p := range ps {
		out = append(out, Serialize(p))
	}
	return out
}

func SerializeNote(patientID string, n *ComplianceNote) NoteView {
	return NoteView{
		ID:        n.ID,
		PatientID: patientID,
		Note:      n.Note,
		CreatedAt: formatTime(n.CreatedAt),
		CreatedBy: n.CreatedBy,
	}
}
