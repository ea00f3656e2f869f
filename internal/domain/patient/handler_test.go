package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wellness/portal/internal/platform/auth"
	"github.com/wellness/portal/internal/platform/middleware"
)

func newTestHandler() (*Handler, *echo.Echo, *mockRepo) {
	svc, repo := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	e.Validator = middleware.NewValidator()
	e.JSONSerializer = middleware.StrictJSONSerializer{}
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(zerolog.Nop())
	return h, e, repo
}

// newRouted mounts the handler under /api with the given identity injected.
func newRouted(roles ...string) (*echo.Echo, *Service, *mockRepo) {
	h, e, repo := newTestHandler()
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(roles) > 0 {
				ctx := auth.WithIdentity(c.Request().Context(), "user-1", "u@example.com", roles)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	})
	h.RegisterRoutes(api)
	return e, h.svc, repo
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestHandler_ListPatients(t *testing.T) {
	h, e, _ := newTestHandler()
	mustCreate(t, h.svc, samplePatient("Alice Moss", "alice@example.com"))
	mustCreate(t, h.svc, samplePatient("Bob Stone", "bob@example.com"))

	req := httptest.NewRequest(http.MethodGet, "/api/patients?search=alice", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var list []map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 patient, got %d", len(list))
	}
	for _, key := range []string{"goals", "dailyLogs", "reminders", "complianceNotes"} {
		if _, ok := list[0][key]; ok {
			t.Errorf("summary must not include %q", key)
		}
	}
	if list[0]["name"] != "Alice Moss" {
		t.Errorf("expected Alice Moss, got %v", list[0]["name"])
	}
}

func TestHandler_ListPatients_EmptyIsArray(t *testing.T) {
	h, e, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/patients?compliance=All", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("expected [], got %s", got)
	}
}

func TestHandler_ListPatients_BadQuery(t *testing.T) {
	h, e, _ := newTestHandler()

	for _, q := range []string{"compliance=Extreme", "limit=abc", "offset=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/patients?"+q, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := h.ListPatients(c)
		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e, _ := newTestHandler()
	p := mustCreate(t, h.svc, samplePatient("Jane", "jane@example.com"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	notes, ok := got["complianceNotes"].([]interface{})
	if !ok || len(notes) != 0 {
		t.Errorf("expected empty complianceNotes array, got %v", got["complianceNotes"])
	}
	if goals, ok := got["goals"].([]interface{}); !ok || len(goals) != 1 {
		t.Errorf("expected one goal, got %v", got["goals"])
	}
}

func TestHandler_GetPatient_Errors(t *testing.T) {
	h, e, _ := newTestHandler()

	cases := []struct {
		id   string
		code int
		msg  string
	}{
		{"not-an-id", http.StatusBadRequest, "invalid patient id"},
		{uuid.NewString(), http.StatusNotFound, "Patient not found"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(tc.id)

		err := h.GetPatient(c)
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			t.Fatalf("%s: expected HTTPError, got %v", tc.id, err)
		}
		if he.Code != tc.code || he.Message != tc.msg {
			t.Errorf("%s: expected %d %q, got %d %v", tc.id, tc.code, tc.msg, he.Code, he.Message)
		}
	}
}

func TestHandler_AddComplianceNote(t *testing.T) {
	h, e, repo := newTestHandler()
	p := mustCreate(t, h.svc, samplePatient("Jane", "jane@example.com"))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"  Doing well ","createdBy":"Dr. Lee"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.AddComplianceNote(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var got NoteView
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.PatientID != p.ID || got.Note != "Doing well" || got.CreatedBy != "Dr. Lee" {
		t.Errorf("unexpected response %+v", got)
	}
	if got.ID == "" || got.CreatedAt != "2025-03-04T05:06:07.891Z" {
		t.Errorf("unexpected id/createdAt %+v", got)
	}
	if len(repo.data[p.ID].ComplianceNotes) != 1 {
		t.Error("expected note to be stored")
	}
}

func TestHandler_AddComplianceNote_Rejections(t *testing.T) {
	h, e, repo := newTestHandler()
	p := mustCreate(t, h.svc, samplePatient("Jane", "jane@example.com"))

	cases := []struct {
		name string
		id   string
		body string
		code int
	}{
		{"blank note", p.ID, `{"note":"   "}`, http.StatusBadRequest},
		{"missing note", p.ID, `{}`, http.StatusBadRequest},
		{"wrong type", p.ID, `{"note":42}`, http.StatusBadRequest},
		{"unknown field", p.ID, `{"note":"x","mood":"ok"}`, http.StatusBadRequest},
		{"too long", p.ID, `{"note":"` + strings.Repeat("a", MaxNoteLength+1) + `"}`, http.StatusBadRequest},
		{"invalid id", "xyz", `{"note":"x"}`, http.StatusBadRequest},
		{"unknown patient", uuid.NewString(), `{"note":"x"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(tc.id)

			err := h.AddComplianceNote(c)
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != tc.code {
				t.Errorf("expected %d, got %v", tc.code, err)
			}
		})
	}
	if n := len(repo.data[p.ID].ComplianceNotes); n != 0 {
		t.Errorf("rejected requests stored %d notes", n)
	}
}

func TestHandler_AddComplianceNoteByBody(t *testing.T) {
	h, e, _ := newTestHandler()
	p := mustCreate(t, h.svc, samplePatient("Jane", "jane@example.com"))

	body := `{"patientId":"` + p.ID + `","note":"Called patient"}`
	req := httptest.NewRequest(http.MethodPost, "/api/compliance-notes", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.AddComplianceNoteByBody(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if got := c.Get(middleware.AuditPatientKey); got != p.ID {
		t.Errorf("expected audit patient id %s, got %v", p.ID, got)
	}

	var got NoteView
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.CreatedBy != DefaultNoteAuthor || got.PatientID != p.ID {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestHandler_AddComplianceNoteByBody_MissingPatientID(t *testing.T) {
	h, e, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.AddComplianceNoteByBody(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Routes_RoleChecks(t *testing.T) {
	e, svc, _ := newRouted(auth.RolePatient)
	p := mustCreate(t, svc, samplePatient("Jane", "jane@example.com"))

	if rec := serve(e, http.MethodGet, "/api/patients", ""); rec.Code != http.StatusOK {
		t.Errorf("patient list: expected 200, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/patients/"+p.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("patient detail: expected 200, got %d", rec.Code)
	}

	rec := serve(e, http.MethodPost, "/api/patients/"+p.ID+"/compliance-notes", `{"note":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("patient append: expected 403, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "required role: provider" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestHandler_Routes_Unauthenticated(t *testing.T) {
	e, _, _ := newRouted()

	rec := serve(e, http.MethodGet, "/api/patients", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_Routes_ProviderAppend(t *testing.T) {
	e, svc, _ := newRouted(auth.RoleProvider)
	p := mustCreate(t, svc, samplePatient("Jane", "jane@example.com"))

	rec := serve(e, http.MethodPost, "/api/patients/"+p.ID+"/compliance-notes", `{"note":"first"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(e, http.MethodPost, "/api/compliance-notes", `{"patientId":"`+p.ID+`","note":"second"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/api/patients/"+p.ID, "")
	var got PatientView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ComplianceNotes == nil || len(*got.ComplianceNotes) != 2 {
		t.Fatalf("expected two notes, got %+v", got.ComplianceNotes)
	}
	notes := *got.ComplianceNotes
	if notes[0].Note != "first" || notes[1].Note != "second" {
		t.Errorf("notes out of order: %+v", notes)
	}

	rec = serve(e, http.MethodPost, "/api/patients/"+uuid.NewString()+"/compliance-notes", `{"note":"x"}`)
	if rec.Code != http.StatusNotFound || errorMessage(t, rec) != "Patient not found" {
		t.Errorf("expected 404 Patient not found, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_InternalErrorHidden(t *testing.T) {
	e, _, repo := newRouted(auth.RoleProvider)
	repo.listErr = errors.New("connection reset by peer")

	rec := serve(e, http.MethodGet, "/api/patients", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "internal server error" {
		t.Errorf("expected generic message, got %q", msg)
	}
}

func TestHTTPError_EmailTaken(t *testing.T) {
	err := httpError(ErrEmailTaken)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}
