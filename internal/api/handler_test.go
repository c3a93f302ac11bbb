package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/daniel-c5656/ai-dvisor/internal/catalog"
	"github.com/daniel-c5656/ai-dvisor/internal/docstore"
)

const catalogCourseJSON = `{
	"name": "Software Engineering",
	"courseUnits": [4],
	"sections": [
		{
			"sisSectionId": "29943",
			"rnrMode": "Lecture",
			"schedule": [
				{"days": ["Tue", "Thu"], "startTime": "14:00", "endTime": "15:20", "location": "SAL 101"}
			],
			"instructors": [{"firstName": "Ada", "lastName": "Lovelace"}]
		}
	]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := docstore.NewSQLite(filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	catalogSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("courseCode") {
		case "CSCI-310":
			w.Write([]byte(catalogCourseJSON))
		case "BAD-101":
			// A section missing its weekdays, as a broken catalog entry.
			w.Write([]byte(`{
				"name": "Broken Course",
				"courseUnits": [2],
				"sections": [
					{
						"sisSectionId": "11111",
						"rnrMode": "Lecture",
						"schedule": [
							{"days": [], "startTime": "10:00", "endTime": "11:00", "location": "TBD"}
						]
					}
				]
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(catalogSrv.Close)

	r := chi.NewRouter()
	h := NewHandler(repo, NewWatchHub(), catalog.NewClient(catalogSrv.URL, nil), nil)
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, body
}

func createTestPlan(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	status, body := doRequest(t, srv, http.MethodPost, "/plan/create?user_id=user-1&title=Fall+2026")
	if status != http.StatusOK {
		t.Fatalf("create plan status = %d, body %s", status, body)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		t.Fatalf("create plan response %s: %v", body, err)
	}
	return out.ID
}

func TestCreatePlanOmitsOptionalFields(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	planID := createTestPlan(t, srv)

	status, body := doRequest(t, srv, http.MethodGet, "/plan?user_id=user-1&plan_id="+planID)
	if status != http.StatusOK {
		t.Fatalf("get plan status = %d", status)
	}

	// Absence is part of the wire contract: a fresh document has no
	// courses, chat_history, or sessionId keys at all.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("invalid plan JSON: %v", err)
	}
	for _, key := range []string{"courses", "chat_history", "sessionId"} {
		if _, present := raw[key]; present {
			t.Errorf("fresh document has %q key: %s", key, body)
		}
	}
	if string(raw["title"]) != `"Fall 2026"` {
		t.Errorf("title = %s", raw["title"])
	}
	if string(raw["courseCount"]) != "0" {
		t.Errorf("courseCount = %s", raw["courseCount"])
	}
}

func TestGetPlanMissingReturns404(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, _ := doRequest(t, srv, http.MethodGet, "/plan?user_id=user-1&plan_id=nope")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestPlanRoutesRequireIdentity(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, _ := doRequest(t, srv, http.MethodGet, "/plan?plan_id=x")
	if status != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", status)
	}
	status, _ = doRequest(t, srv, http.MethodPost, "/plan/create?user_id=user-1")
	if status != http.StatusBadRequest {
		t.Errorf("missing title status = %d, want 400", status)
	}
}

func TestAddSectionFromCatalog(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	planID := createTestPlan(t, srv)

	addPath := "/plan/add?user_id=user-1&plan_id=" + planID +
		"&term_code=20261&course_code=CSCI-310&section_id=29943"
	status, body := doRequest(t, srv, http.MethodPost, addPath)
	if status != http.StatusOK {
		t.Fatalf("add section status = %d, body %s", status, body)
	}

	_, body = doRequest(t, srv, http.MethodGet, "/plan?user_id=user-1&plan_id="+planID)
	var doc struct {
		CourseCount int `json:"courseCount"`
		Courses     []struct {
			SectionID  string  `json:"sectionId"`
			CourseName string  `json:"courseName"`
			Units      float64 `json:"units"`
			Location   string  `json:"location"`
		} `json:"courses"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("invalid plan JSON: %v", err)
	}
	if doc.CourseCount != 1 || len(doc.Courses) != 1 {
		t.Fatalf("courseCount = %d, courses = %d", doc.CourseCount, len(doc.Courses))
	}
	got := doc.Courses[0]
	if got.SectionID != "29943" || got.CourseName != "Software Engineering" ||
		got.Units != 4 || got.Location != "SAL 101" {
		t.Errorf("section not filled from catalog: %+v", got)
	}

	// Adding the same section twice is a conflict.
	status, _ = doRequest(t, srv, http.MethodPost, addPath)
	if status != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", status)
	}
}

func TestAddSectionUnknownCourseReturns404(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	planID := createTestPlan(t, srv)

	status, _ := doRequest(t, srv, http.MethodPost,
		"/plan/add?user_id=user-1&plan_id="+planID+
			"&term_code=20261&course_code=NOPE-101&section_id=1")
	if status != http.StatusNotFound {
		t.Errorf("unknown course status = %d, want 404", status)
	}
}

func TestAddSectionRejectsInvalidCatalogEntry(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	planID := createTestPlan(t, srv)

	status, _ := doRequest(t, srv, http.MethodPost,
		"/plan/add?user_id=user-1&plan_id="+planID+
			"&term_code=20261&course_code=BAD-101&section_id=11111")
	if status != http.StatusBadGateway {
		t.Fatalf("invalid catalog section status = %d, want 502", status)
	}

	// The broken entry never reached the document.
	_, body := doRequest(t, srv, http.MethodGet, "/plan?user_id=user-1&plan_id="+planID)
	var doc struct {
		CourseCount int `json:"courseCount"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("invalid plan JSON: %v", err)
	}
	if doc.CourseCount != 0 {
		t.Errorf("courseCount = %d, want 0", doc.CourseCount)
	}
}

func TestRemoveSection(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	planID := createTestPlan(t, srv)

	doRequest(t, srv, http.MethodPost,
		"/plan/add?user_id=user-1&plan_id="+planID+
			"&term_code=20261&course_code=CSCI-310&section_id=29943")

	status, _ := doRequest(t, srv, http.MethodDelete,
		"/plan/delete?user_id=user-1&plan_id="+planID+"&section_id=29943")
	if status != http.StatusOK {
		t.Fatalf("remove section status = %d", status)
	}

	_, body := doRequest(t, srv, http.MethodGet, "/plan?user_id=user-1&plan_id="+planID)
	var doc struct {
		CourseCount int `json:"courseCount"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("invalid plan JSON: %v", err)
	}
	if doc.CourseCount != 0 {
		t.Errorf("courseCount after remove = %d, want 0", doc.CourseCount)
	}

	// Removing a section that is not in the plan is a quiet no-op.
	status, _ = doRequest(t, srv, http.MethodDelete,
		"/plan/delete?user_id=user-1&plan_id="+planID+"&section_id=99999")
	if status != http.StatusOK {
		t.Errorf("no-op remove status = %d, want 200", status)
	}
}

func TestListAndDeletePlans(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	planID := createTestPlan(t, srv)

	status, body := doRequest(t, srv, http.MethodGet, "/plan/list?user_id=user-1")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var summaries []docstore.Summary
	if err := json.Unmarshal(body, &summaries); err != nil {
		t.Fatalf("invalid list JSON: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != planID {
		t.Fatalf("list = %+v", summaries)
	}

	status, _ = doRequest(t, srv, http.MethodDelete, "/plan?user_id=user-1&plan_id="+planID)
	if status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	status, _ = doRequest(t, srv, http.MethodGet, "/plan?user_id=user-1&plan_id="+planID)
	if status != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", status)
	}
}

func TestUpdatePlanRejectsBadBodies(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	planID := createTestPlan(t, srv)

	post := func(body string) int {
		resp, err := http.Post(
			srv.URL+"/plan/update?user_id=user-1&plan_id="+planID,
			"application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("update request failed: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := post("not json"); status != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", status)
	}
	if status := post("{}"); status != http.StatusBadRequest {
		t.Errorf("empty update status = %d, want 400", status)
	}
	// Invalid course sections never reach the store.
	if status := post(`{"courses":[{"sectionId":"1","days":["Xyz"],"startTime":"14:00","endTime":"15:20"}]}`); status != http.StatusBadRequest {
		t.Errorf("invalid weekday status = %d, want 400", status)
	}
	if status := post(`{"title":"Renamed"}`); status != http.StatusOK {
		t.Errorf("valid update status = %d, want 200", status)
	}
}
