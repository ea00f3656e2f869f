package patient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ── Mock Repository ──

type mockRepo struct {
	mu      sync.Mutex
	order   []string
	data    map[string]*Patient
	listErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{data: make(map[string]*Patient)}
}

func clonePatient(p *Patient) *Patient {
	cp := *p
	cp.Goals = append([]Goal(nil), p.Goals...)
	cp.DailyLogs = append([]DailyLog(nil), p.DailyLogs...)
	cp.Reminders = append([]Reminder(nil), p.Reminders...)
	cp.ComplianceNotes = append([]ComplianceNote(nil), p.ComplianceNotes...)
	if cp.Goals == nil {
		cp.Goals = []Goal{}
	}
	if cp.DailyLogs == nil {
		cp.DailyLogs = []DailyLog{}
	}
	if cp.Reminders == nil {
		cp.Reminders = []Reminder{}
	}
	if cp.ComplianceNotes == nil {
		cp.ComplianceNotes = []ComplianceNote{}
	}
	return &cp
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data {
		if existing.Email == p.Email {
			return ErrEmailTaken
		}
	}
	p.ID = uuid.NewString()
	for i := range p.Goals {
		p.Goals[i].ID = uuid.NewString()
	}
	for i := range p.DailyLogs {
		p.DailyLogs[i].ID = uuid.NewString()
	}
	for i := range p.Reminders {
		p.Reminders[i].ID = uuid.NewString()
	}
	for i := range p.ComplianceNotes {
		p.ComplianceNotes[i].ID = uuid.NewString()
	}
	m.data[p.ID] = clonePatient(p)
	m.order = append(m.order, p.ID)
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var matched []*Patient
	for _, id := range m.order {
		p := m.data[id]
		if !f.Matches(p) {
			continue
		}
		summary := *p
		summary.Goals, summary.DailyLogs, summary.Reminders, summary.ComplianceNotes = nil, nil, nil, nil
		matched = append(matched, &summary)
	}
	start := f.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return matched[start:end], nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePatient(p), nil
}

func (m *mockRepo) AppendComplianceNote(_ context.Context, patientID string, n *ComplianceNote) (*ComplianceNote, error) {
	if _, err := uuid.Parse(patientID); err != nil {
		return nil, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	stored := *n
	stored.ID = uuid.NewString()
	p.ComplianceNotes = append(p.ComplianceNotes, stored)
	p.UpdatedAt = n.CreatedAt
	p.Version++
	return &stored, nil
}

func (m *mockRepo) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string]*Patient)
	m.order = nil
	return n, nil
}

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 891234567, time.UTC)

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func samplePatient(name, email string) *Patient {
	return &Patient{
		Name:  name,
		Email: email,
		Phone: "+1-555-0100",
		Goals: []Goal{{
			Title: "Steps", Description: "Walk", TargetValue: 10000, Unit: "steps",
			Deadline: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		}},
		DailyLogs: []DailyLog{{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Steps: 4000, SleepHours: 7}},
		Reminders: []Reminder{{
			Title: "Checkup", Description: "Annual", DueDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		}},
	}
}

func mustCreate(t *testing.T, svc *Service, p *Patient) *Patient {
	t.Helper()
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	return p
}

// ── Service Tests ──

func TestService_CreatePatient_Defaults(t *testing.T) {
	svc, _ := newTestService()
	p := mustCreate(t, svc, samplePatient("Jane Roe", "jane@example.com"))

	if p.ID == "" {
		t.Error("expected id to be assigned")
	}
	if p.ComplianceStatus != ComplianceMedium {
		t.Errorf("expected Medium, got %s", p.ComplianceStatus)
	}
	if p.ComplianceScore != 0 {
		t.Errorf("explicit zero score must be kept, got %d", p.ComplianceScore)
	}
	if !p.AssignedDate.Equal(fixedNow.Truncate(time.Millisecond)) {
		t.Errorf("expected assignedDate to default to now, got %v", p.AssignedDate)
	}
	if p.Goals[0].Status != GoalActive {
		t.Errorf("expected goal status active, got %s", p.Goals[0].Status)
	}
	if p.Reminders[0].Priority != PriorityMedium {
		t.Errorf("expected reminder priority medium, got %s", p.Reminders[0].Priority)
	}
}

func TestService_CreatePatient_Validation(t *testing.T) {
	svc, _ := newTestService()

	bad := samplePatient("", "jane@example.com")
	if err := svc.CreatePatient(context.Background(), bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for missing name, got %v", err)
	}

	bad = samplePatient("Jane", "not-an-email")
	if err := svc.CreatePatient(context.Background(), bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for bad email, got %v", err)
	}

	bad = samplePatient("Jane", "jane@example.com")
	bad.ComplianceScore = 101
	if err := svc.CreatePatient(context.Background(), bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for score 101, got %v", err)
	}
}

func TestService_CreatePatient_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	mustCreate(t, svc, samplePatient("Jane", "jane@example.com"))

	err := svc.CreatePatient(context.Background(), samplePatient("Other", "jane@example.com"))
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestService_ListPatients_Filters(t *testing.T) {
	svc, _ := newTestService()
	a := samplePatient("Alice Moss", "alice@example.com")
	a.ComplianceStatus = ComplianceHigh
	mustCreate(t, svc, a)
	b := samplePatient("Bob Stone", "bob@clinic.org")
	b.ComplianceStatus = ComplianceLow
	mustCreate(t, svc, b)

	ctx := context.Background()

	all, err := svc.ListPatients(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(all))
	}
	if all[0].Name != "Alice Moss" || all[1].Name != "Bob Stone" {
		t.Errorf("expected insertion order, got %s, %s", all[0].Name, all[1].Name)
	}
	for _, p := range all {
		if p.Goals != nil || p.DailyLogs != nil || p.Reminders != nil || p.ComplianceNotes != nil {
			t.Errorf("list entry %s carries sub-collections", p.Name)
		}
	}

	got, _ := svc.ListPatients(ctx, ListFilter{Search: "  CLINIC "})
	if len(got) != 1 || got[0].Name != "Bob Stone" {
		t.Errorf("search by email: got %v", got)
	}

	got, _ = svc.ListPatients(ctx, ListFilter{Compliance: ComplianceHigh})
	if len(got) != 1 || got[0].Name != "Alice Moss" {
		t.Errorf("compliance filter: got %v", got)
	}

	if _, err := svc.ListPatients(ctx, ListFilter{Compliance: "Extreme"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for unknown compliance, got %v", err)
	}
}

func TestService_GetPatient(t *testing.T) {
	svc, _ := newTestService()
	p := mustCreate(t, svc, samplePatient("Jane", "jane@example.com"))

	got, err := svc.GetPatient(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("expected id %s, got %s", p.ID, got.ID)
	}
	if len(got.Goals) != 1 || got.ComplianceNotes == nil {
		t.Errorf("expected full record, got %+v", got)
	}

	if _, err := svc.GetPatient(context.Background(), "not-an-id"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
	if _, err := svc.GetPatient(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_AddComplianceNote(t *testing.T) {
	svc, repo := newTestService()
	p := mustCreate(t, svc, samplePatient("Jane", "jane@example.com"))

	n, err := svc.AddComplianceNote(context.Background(), p.ID, "  Improving steadily  ", "")
	if err != nil {
		t.Fatalf("AddComplianceNote: %v", err)
	}
	if n.ID == "" {
		t.Error("expected a fresh note id")
	}
	if n.Note != "Improving steadily" {
		t.Errorf("expected trimmed note, got %q", n.Note)
	}
	if n.CreatedBy != DefaultNoteAuthor {
		t.Errorf("expected default author, got %q", n.CreatedBy)
	}
	if !n.CreatedAt.Equal(fixedNow.Truncate(time.Millisecond)) {
		t.Errorf("unexpected createdAt %v", n.CreatedAt)
	}

	second, err := svc.AddComplianceNote(context.Background(), p.ID, "Second", "Dr. Chen")
	if err != nil {
		t.Fatalf("AddComplianceNote: %v", err)
	}
	stored := repo.data[p.ID].ComplianceNotes
	if len(stored) != 2 || stored[1].ID != second.ID || stored[1].CreatedBy != "Dr. Chen" {
		t.Errorf("expected second note appended last, got %+v", stored)
	}
	if stored[0].ID == stored[1].ID {
		t.Error("note ids must be unique")
	}
}

func TestService_AddComplianceNote_Rejections(t *testing.T) {
	svc, repo := newTestService()
	p := mustCreate(t, svc, samplePatient("Jane", "jane@example.com"))
	ctx := context.Background()

	for _, note := range []string{"", "   ", "\n\t"} {
		if _, err := svc.AddComplianceNote(ctx, p.ID, note, ""); !errors.Is(err, ErrValidation) {
			t.Errorf("note %q: expected validation error, got %v", note, err)
		}
	}
	if got := len(repo.data[p.ID].ComplianceNotes); got != 0 {
		t.Errorf("rejected notes must not be stored, got %d", got)
	}

	if _, err := svc.AddComplianceNote(ctx, p.ID, strings.Repeat("x", MaxNoteLength+1), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for oversized note, got %v", err)
	}
	if _, err := svc.AddComplianceNote(ctx, uuid.NewString(), "hello", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.AddComplianceNote(ctx, "bogus", "hello", ""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
	if _, err := svc.AddComplianceNote(ctx, "  ", "hello", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for blank patient id, got %v", err)
	}
}

func TestService_ConcurrentAppends(t *testing.T) {
	svc, repo := newTestService()
	p := mustCreate(t, svc, samplePatient("Jane", "jane@example.com"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddComplianceNote(context.Background(), p.ID, "note", "Dr. A"); err != nil {
				t.Errorf("AddComplianceNote: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(repo.data[p.ID].ComplianceNotes); got != 20 {
		t.Errorf("expected 20 notes, got %d", got)
	}
}

func TestService_Seed(t *testing.T) {
	svc, repo := newTestService()
	mustCreate(t, svc, samplePatient("Existing", "john.smith@email.com"))

	patients, err := SamplePatients()
	if err != nil {
		t.Fatalf("SamplePatients: %v", err)
	}
	res, err := svc.Seed(context.Background(), patients, false)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(res.Inserted) != len(patients)-1 || len(res.Skipped) != 1 {
		t.Errorf("expected one skip, got inserted=%d skipped=%v", len(res.Inserted), res.Skipped)
	}

	fresh, _ := SamplePatients()
	res, err = svc.Seed(context.Background(), fresh, true)
	if err != nil {
		t.Fatalf("Seed reset: %v", err)
	}
	if res.Deleted != int64(len(patients)) {
		t.Errorf("expected %d deleted, got %d", len(patients), res.Deleted)
	}
	if len(repo.data) != len(fresh) {
		t.Errorf("expected %d patients after reset, got %d", len(fresh), len(repo.data))
	}
}

func TestSamplePatients_ValidAndScorePreserved(t *testing.T) {
	patients, err := SamplePatients()
	if err != nil {
		t.Fatalf("SamplePatients: %v", err)
	}
	if len(patients) != 6 {
		t.Fatalf("expected 6 sample patients, got %d", len(patients))
	}
	var emily *Patient
	for _, p := range patients {
		p.ApplyDefaults(fixedNow)
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", p.Name, err)
		}
		if p.Name == "Emily Johnson" {
			emily = p
		}
	}
	if emily == nil || emily.ComplianceScore != 65 {
		t.Errorf("expected Emily Johnson with score 65, got %+v", emily)
	}
}
