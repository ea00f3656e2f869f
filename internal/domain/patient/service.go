package patient

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// clock returns the current time at the precision stored and rendered.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.ApplyDefaults(s.clock())
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, f ListFilter) ([]*Patient, error) {
	if f.Compliance != "" && !f.Compliance.Valid() {
		return nil, invalid("compliance", "compliance must be one of: All, Low, Medium, High")
	}
	f.Search = strings.TrimSpace(f.Search)
	return s.repo.List(ctx, f)
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

// AddComplianceNote appends a note to a patient's compliance notes. The
// text is trimmed and must not be empty; a blank author becomes
// DefaultNoteAuthor.
func (s *Service) AddComplianceNote(ctx context.Context, patientID, note, createdBy string) (*ComplianceNote, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, invalid("patientId", "patientId is required")
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, invalid("note", "note is required")
	}
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, invalid("note", "note must be at most %d characters", MaxNoteLength)
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		createdBy = DefaultNoteAuthor
	}

	return s.repo.AppendComplianceNote(ctx, patientID, &ComplianceNote{
		Note:      note,
		CreatedAt: s.clock(),
		CreatedBy: createdBy,
	})
}

// SeedResult reports what Seed did.
type SeedResult struct {
	Deleted  int64
	Inserted []*Patient
	Skipped  []string
}

// Seed inserts the given patients, first removing every existing patient
// when reset is set. Patients whose email already exists are skipped.
func (s *Service) Seed(ctx context.Context, patients []*Patient, reset bool) (*SeedResult, error) {
	res := &SeedResult{}
	if reset {
		n, err := s.repo.DeleteAll(ctx)
		if err != nil {
			return nil, err
		}
		res.Deleted = n
	}
	for _, p := range patients {
		err := s.CreatePatient(ctx, p)
		switch {
		case err == nil:
			res.Inserted = append(res.Inserted, p)
		case errors.Is(err, ErrEmailTaken):
			res.Skipped = append(res.Skipped, p.Email)
		default:
			return res, err
		}
	}
	return res, nil
}
