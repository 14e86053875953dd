package backend

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/courseloc/courseloc/core"
	"github.com/courseloc/courseloc/sqldb"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	tokenEditor = "test-editor-token-0123456789abcdef"
	tokenSuper  = "test-super-token-0123456789abcdef"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1) // each new connection would get its own empty memory db
	t.Cleanup(func() {
		db.Close()
	})

	var logger = logrus.New()
	logger.SetOutput(io.Discard)

	var userDB = sqldb.NewUserDB(db)
	var coreDB = &core.CoreDB{
		AuditDB: sqldb.NewAuditDB(db),
		UnitDB:  sqldb.NewUnitDB(db),
		UserDB:  userDB,
		Log:     logger,
	}
	coreDB.Init()

	editor, err := userDB.InsertUser("editor@example.com", core.ContentEditor, nil)
	if err != nil {
		t.Fatalf("insert editor: %v", err)
	}
	if err := userDB.SetToken(editor, tokenEditor); err != nil {
		t.Fatalf("set token: %v", err)
	}
	super, err := userDB.InsertUser("boss@example.com", core.SuperAdmin, nil)
	if err != nil {
		t.Fatalf("insert superadmin: %v", err)
	}
	if err := userDB.SetToken(super, tokenSuper); err != nil {
		t.Fatalf("set token: %v", err)
	}

	return NewRouter(coreDB, logger)
}

func call(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

type unitResponse struct {
	Unit struct {
		Key            string            `json:"key"`
		Content        map[string]string `json:"content"`
		ApprovalStatus string            `json:"approvalStatus"`
		Version        int               `json:"version"`
		PublishedAt    int64             `json:"publishedAt"`
	} `json:"unit"`
	Warnings []string `json:"warnings"`
}

func TestWorkflowRoundtrip(t *testing.T) {

	var h = newTestServer(t)

	rec := call(t, h, "POST", "/units/nav.home/submit", tokenEditor,
		`{"content": {"en": "Home", "ru": "Главная"}, "category": "navigation"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var resp unitResponse
	decode(t, rec, &resp)
	if resp.Unit.ApprovalStatus != "pending_review" || resp.Unit.Version != 1 {
		t.Fatalf("after submit: %+v", resp.Unit)
	}

	rec = call(t, h, "POST", "/units/nav.home/begin-review", tokenSuper, `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("begin review: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, h, "POST", "/units/nav.home/approve", tokenSuper, `{"notes": "lgtm"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &resp)
	if resp.Unit.ApprovalStatus != "approved" || resp.Unit.Version != 2 || resp.Unit.PublishedAt == 0 {
		t.Fatalf("after approve: %+v", resp.Unit)
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", resp.Warnings)
	}

	rec = call(t, h, "GET", "/units/nav.home", tokenEditor, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get unit: %d %s", rec.Code, rec.Body.String())
	}
	var unit struct {
		Content map[string]string `json:"content"`
		Version int               `json:"version"`
	}
	decode(t, rec, &unit)
	if unit.Content["ru"] != "Главная" || unit.Version != 2 {
		t.Errorf("get unit: %+v", unit)
	}

	rec = call(t, h, "GET", "/units/nav.home/revisions", tokenEditor, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("revisions: %d %s", rec.Code, rec.Body.String())
	}
	var revisions []struct {
		Version int `json:"version"`
	}
	decode(t, rec, &revisions)
	if len(revisions) != 1 || revisions[0].Version != 2 {
		t.Errorf("revisions: %+v", revisions)
	}

	rec = call(t, h, "GET", "/pending", tokenSuper, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pending: %d %s", rec.Code, rec.Body.String())
	}
	var pending []json.RawMessage
	decode(t, rec, &pending)
	if len(pending) != 0 {
		t.Errorf("pending queue not empty: %s", rec.Body.String())
	}

	rec = call(t, h, "GET", "/units/nav.home/audit", tokenSuper, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: %d %s", rec.Code, rec.Body.String())
	}
	var trail []struct {
		Action string `json:"action"`
	}
	decode(t, rec, &trail)
	if len(trail) != 2 || trail[0].Action != "APPROVED" || trail[1].Action != "SUBMITTED" {
		t.Errorf("audit trail: %+v", trail)
	}

	rec = call(t, h, "GET", "/stats", tokenEditor, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body.String())
	}
	var stats core.Stats
	decode(t, rec, &stats)
	if (stats != core.Stats{Total: 1, Approved: 1, Published: 1}) {
		t.Errorf("stats: %+v", stats)
	}
}

func TestListUnitsFilter(t *testing.T) {

	var h = newTestServer(t)

	call(t, h, "POST", "/units/nav.home/submit", tokenEditor, `{"content": {"en": "Home"}, "page": "index"}`)
	call(t, h, "POST", "/units/faq.title/submit", tokenEditor, `{"content": {"en": "FAQ"}, "page": "faq"}`)

	rec := call(t, h, "GET", "/units?page=faq", tokenEditor, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var units []struct {
		Key string `json:"key"`
	}
	decode(t, rec, &units)
	if len(units) != 1 || units[0].Key != "faq.title" {
		t.Errorf("filtered list: %+v", units)
	}

	rec = call(t, h, "GET", "/units?status=bogus", tokenEditor, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter: %d %s", rec.Code, rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {

	var h = newTestServer(t)

	var tests = []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"no token", "POST", "/units/a/submit", "", `{"content": {"en": "x"}}`, http.StatusForbidden},
		{"unknown token", "POST", "/units/a/submit", "wrong", `{"content": {"en": "x"}}`, http.StatusForbidden},
		{"unknown unit", "GET", "/units/no.such.key", tokenEditor, "", http.StatusNotFound},
		{"invalid body", "POST", "/units/a/submit", tokenEditor, `{`, http.StatusBadRequest},
		{"unknown language", "POST", "/units/a/submit", tokenEditor, `{"content": {"de": "Start"}}`, http.StatusBadRequest},
		{"editor reads queue", "GET", "/pending", tokenEditor, "", http.StatusForbidden},
		{"editor reads audit", "GET", "/units/a/audit", tokenEditor, "", http.StatusForbidden},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := call(t, h, test.method, test.path, test.token, test.body)
			if rec.Code != test.want {
				t.Errorf("got %d %s, want %d", rec.Code, rec.Body.String(), test.want)
			}
		})
	}

	// review calls against a unit in the wrong state are conflicts
	if rec := call(t, h, "POST", "/units/b/submit", tokenEditor, `{"content": {"en": "x"}}`); rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(t, h, "POST", "/units/b/approve", tokenSuper, `{}`); rec.Code != http.StatusConflict {
		t.Errorf("approve pending unit: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(t, h, "POST", "/units/b/begin-review", tokenSuper, `{}`); rec.Code != http.StatusOK {
		t.Fatalf("begin review: %d", rec.Code)
	}
	if rec := call(t, h, "POST", "/units/b/reject", tokenSuper, `{"notes": "missing the reason"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("reject without reason: %d %s", rec.Code, rec.Body.String())
	}

	// editors cannot approve at all
	if rec := call(t, h, "POST", "/units/b/approve", tokenEditor, `{}`); rec.Code != http.StatusForbidden {
		t.Errorf("editor approve: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDirectEditEndpoint(t *testing.T) {

	var h = newTestServer(t)

	rec := call(t, h, "POST", "/units/banner.text/direct-edit", tokenEditor, `{"content": {"en": "Hi"}}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("editor direct edit: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, h, "POST", "/units/banner.text/direct-edit", tokenSuper, `{"content": {"en": "Hi"}, "notes": "hotfix"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("direct edit: %d %s", rec.Code, rec.Body.String())
	}
	var resp unitResponse
	decode(t, rec, &resp)
	if resp.Unit.ApprovalStatus != "approved" || resp.Unit.PublishedAt == 0 {
		t.Errorf("after direct edit: %+v", resp.Unit)
	}
}
