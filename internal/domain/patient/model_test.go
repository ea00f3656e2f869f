package patient

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Patient{
		Name:            "Jane",
		Goals:           []Goal{{Title: "g"}},
		Reminders:       []Reminder{{Title: "r"}},
		ComplianceNotes: []ComplianceNote{{Note: "n", CreatedBy: "  "}},
	}
	p.ApplyDefaults(now)

	if p.ComplianceStatus != ComplianceMedium {
		t.Errorf("expected Medium, got %s", p.ComplianceStatus)
	}
	if !p.AssignedDate.Equal(now) || !p.CreatedAt.Equal(now) || !p.UpdatedAt.Equal(now) {
		t.Error("expected dates to default to now")
	}
	if p.Goals[0].Status != GoalActive {
		t.Errorf("expected active goal, got %s", p.Goals[0].Status)
	}
	if p.Reminders[0].Priority != PriorityMedium {
		t.Errorf("expected medium priority, got %s", p.Reminders[0].Priority)
	}
	if n := p.ComplianceNotes[0]; n.CreatedBy != DefaultNoteAuthor || !n.CreatedAt.Equal(now) {
		t.Errorf("unexpected note defaults %+v", n)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	assigned := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	p := &Patient{ComplianceStatus: ComplianceLow, ComplianceScore: 65, AssignedDate: assigned}
	p.ApplyDefaults(time.Now())

	if p.ComplianceStatus != ComplianceLow || p.ComplianceScore != 65 || !p.AssignedDate.Equal(assigned) {
		t.Errorf("explicit values overwritten: %+v", p)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Patient {
		p := samplePatient("Jane", "jane@example.com")
		p.ApplyDefaults(time.Now())
		return p
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("expected valid patient, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Patient)
		field  string
	}{
		{"phone", func(p *Patient) { p.Phone = "" }, "phone"},
		{"status", func(p *Patient) { p.ComplianceStatus = "Unknown" }, "complianceStatus"},
		{"negative score", func(p *Patient) { p.ComplianceScore = -1 }, "complianceScore"},
		{"goal unit", func(p *Patient) { p.Goals[0].Unit = " " }, "goals"},
		{"goal status", func(p *Patient) { p.Goals[0].Status = "done" }, "goals"},
		{"log steps", func(p *Patient) { p.DailyLogs[0].Steps = -5 }, "dailyLogs"},
		{"reminder priority", func(p *Patient) { p.Reminders[0].Priority = "urgent" }, "reminders"},
		{"blank note", func(p *Patient) { p.ComplianceNotes = []ComplianceNote{{Note: ""}} }, "complianceNotes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base()
			tc.mutate(p)
			err := p.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected field %s, got %s", tc.field, verr.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("ValidationError must match ErrValidation")
			}
		})
	}
}

func TestParseComplianceFilter(t *testing.T) {
	cases := []struct {
		raw     string
		want    ComplianceStatus
		wantErr bool
	}{
		{"", "", false},
		{"All", "", false},
		{"all", "", false},
		{"High", ComplianceHigh, false},
		{" Low ", ComplianceLow, false},
		{"high", "", true},
		{"Extreme", "", true},
	}
	for _, tc := range cases {
		got, err := ParseComplianceFilter(tc.raw)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: unexpected error %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.raw, tc.want, got)
		}
	}
}

func TestListFilter_Matches(t *testing.T) {
	p := &Patient{Name: "Emily Johnson", Email: "emily.johnson@email.com", ComplianceStatus: ComplianceMedium}

	cases := []struct {
		f    ListFilter
		want bool
	}{
		{ListFilter{}, true},
		{ListFilter{Search: "EMILY"}, true},
		{ListFilter{Search: "johnson@"}, true},
		{ListFilter{Search: "smith"}, false},
		{ListFilter{Compliance: ComplianceMedium}, true},
		{ListFilter{Compliance: ComplianceHigh}, false},
		{ListFilter{Search: "emily", Compliance: ComplianceLow}, false},
	}
	for _, tc := range cases {
		if got := tc.f.Matches(p); got != tc.want {
			t.Errorf("%+v: expected %v, got %v", tc.f, tc.want, got)
		}
	}
}

func TestPatient_UnmarshalJSON(t *testing.T) {
	var p Patient
	if err := json.Unmarshal([]byte(`{"name":"Jane","email":"j@example.com","phone":"1"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ComplianceScore != DefaultComplianceScore {
		t.Errorf("expected default score %d, got %d", DefaultComplianceScore, p.ComplianceScore)
	}

	if err := json.Unmarshal([]byte(`{"name":"Jane","complianceScore":0}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ComplianceScore != 0 {
		t.Errorf("explicit zero must be kept, got %d", p.ComplianceScore)
	}

	if err := json.Unmarshal([]byte(`{"name":"Jane","nickname":"JJ"}`), &p); err == nil {
		t.Error("expected unknown field to be rejected")
	}
}
