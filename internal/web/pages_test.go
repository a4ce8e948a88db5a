package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/fiturae/fiturae/internal/client"
	"github.com/fiturae/fiturae/internal/middleware"
	"github.com/fiturae/fiturae/internal/model"
	"github.com/fiturae/fiturae/internal/session"
)

// --- 偽のAPIサーバー ---

type fakeAPI struct {
	mu        sync.Mutex
	identity  *session.Identity
	meStatus  int
	workouts  map[string]model.Workout
	forbidden map[string]bool
	listFails bool

	meCalls     atomic.Int32
	logoutCalls atomic.Int32
	created     []model.WorkoutDetails
	edited      []model.WorkoutEdit
	deleted     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		identity:  &session.Identity{ID: "u1", Name: "Ada", ImageURL: "http://x/a.png"},
		workouts:  map[string]model.Workout{},
		forbidden: map[string]bool{},
	}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		f.meCalls.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.meStatus != 0 {
			w.WriteHeader(f.meStatus)
			return
		}
		if f.identity == nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(f.identity)
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		f.mu.Lock()
		f.identity = nil
		f.mu.Unlock()
		http.Redirect(w, r, "http://web.example/", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /api/workouts/{userId}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.listFails {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		list := []model.Workout{}
		for _, wo := range f.workouts {
			if wo.UserID == r.PathValue("userId") {
				list = append(list, wo)
			}
		}
		json.NewEncoder(w).Encode(list)
	})
	mux.HandleFunc("GET /api/workouts/details/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if f.forbidden[id] {
			middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		wo, ok := f.workouts[id]
		if !ok {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewWorkoutNotFoundError())
			return
		}
		json.NewEncoder(w).Encode(wo)
	})
	mux.HandleFunc("POST /api/workouts", func(w http.ResponseWriter, r *http.Request) {
		var d model.WorkoutDetails
		json.NewDecoder(r.Body).Decode(&d)
		if d.WorkoutName == "reject" {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("workoutName is not allowed"))
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = append(f.created, d)
		wo := model.Workout{ID: "w-new", UserID: d.UserID, WorkoutName: d.WorkoutName, WorkoutDay: d.WorkoutDay, Plan: d.Plan}
		f.workouts[wo.ID] = wo
		json.NewEncoder(w).Encode(wo)
	})
	mux.HandleFunc("PUT /api/workouts/{id}", func(w http.ResponseWriter, r *http.Request) {
		var e model.WorkoutEdit
		json.NewDecoder(r.Body).Decode(&e)
		f.mu.Lock()
		defer f.mu.Unlock()
		wo, ok := f.workouts[r.PathValue("id")]
		if !ok {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewWorkoutNotFoundError())
			return
		}
		f.edited = append(f.edited, e)
		wo.WorkoutName, wo.WorkoutDay, wo.Description, wo.Plan = e.WorkoutName, e.WorkoutDay, e.Description, e.Plan
		f.workouts[wo.ID] = wo
		json.NewEncoder(w).Encode(wo)
	})
	mux.HandleFunc("DELETE /api/workouts/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		delete(f.workouts, r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// --- テストヘルパー ---

const testCSRFToken = "csrf-test-token"

func newTestWeb(t *testing.T, api *fakeAPI) http.Handler {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	router, err := NewRouter(Config{
		API:      client.New(server.URL, time.Second, logger),
		LoginURL: "http://api.example/auth/github/login",
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func get(router http.Handler, path string, loggedIn bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if loggedIn {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func post(router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFormField, testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func parseHTML(t *testing.T, body *bytes.Buffer) *html.Node {
	t.Helper()
	doc, err := html.Parse(bytes.NewReader(body.Bytes()))
	if err != nil {
		t.Fatalf("html.Parse: %v", err)
	}
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	if match(n) {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findAll(c, match)...)
	}
	return out
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "class") == class
	}
}

func inputNamed(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") == name
	}
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// --- 公開画面 ---

func TestStartAndLoginPages(t *testing.T) {
	router := newTestWeb(t, newFakeAPI())

	t.Run("トップ画面", func(t *testing.T) {
		w := get(router, "/", false)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		doc := parseHTML(t, w.Body)
		if findByID(doc, "start") == nil {
			t.Error("start view not rendered")
		}
		if findByID(doc, "logout-form") != nil {
			t.Error("logout form must not appear on public pages")
		}
		if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'self'") {
			t.Errorf("Content-Security-Policy = %q", csp)
		}
	})

	t.Run("ログイン画面", func(t *testing.T) {
		w := get(router, LoginPath, false)
		doc := parseHTML(t, w.Body)
		link := findByID(doc, "github-login")
		if link == nil || attr(link, "href") != "http://api.example/auth/github/login" {
			t.Errorf("github login link = %v", link)
		}
	})
}

// --- ガード付きの画面 ---

func TestHome_Authenticated(t *testing.T) {
	api := newFakeAPI()
	api.workouts["w1"] = model.Workout{ID: "w1", UserID: "u1", WorkoutName: "Push day", WorkoutDay: model.Monday}
	api.workouts["w2"] = model.Workout{ID: "w2", UserID: "someone-else", WorkoutName: "Other"}
	router := newTestWeb(t, api)

	w := get(router, HomePath, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	doc := parseHTML(t, w.Body)

	home := findByID(doc, "home")
	if home == nil || attr(home, "data-user-id") != "u1" {
		t.Fatalf("home section = %v", home)
	}
	if !strings.Contains(text(home), "Ada") {
		t.Errorf("home text = %q, want user name", text(home))
	}
	viewer := findByID(doc, "viewer")
	if viewer == nil || !strings.Contains(text(viewer), "Ada") {
		t.Errorf("viewer = %v", viewer)
	}
	avatars := findAll(doc, hasClass("avatar"))
	if len(avatars) != 1 || attr(avatars[0], "src") != "http://x/a.png" {
		t.Errorf("avatar = %v", avatars)
	}
	if findByID(doc, "login") != nil {
		t.Error("login view must not be rendered")
	}

	items := findAll(doc, hasClass("workout"))
	if len(items) != 1 || attr(items[0], "data-id") != "w1" {
		t.Errorf("workout items = %d", len(items))
	}
	if got := api.meCalls.Load(); got != 1 {
		t.Errorf("identity lookups = %d, want 1", got)
	}
}

func TestHome_Unauthenticated(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakeAPI)
		loggedIn  bool
		wantCalls int32
	}{
		{name: "401かつ本文なし", setup: func(f *fakeAPI) { f.identity = nil }, loggedIn: true, wantCalls: 1},
		{name: "APIのエラー", setup: func(f *fakeAPI) { f.meStatus = http.StatusInternalServerError }, loggedIn: true, wantCalls: 1},
		{name: "200で本文が空", setup: func(f *fakeAPI) { f.meStatus = http.StatusOK }, loggedIn: true, wantCalls: 1},
		{name: "Cookieなしは照会しない", setup: func(f *fakeAPI) {}, loggedIn: false, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			tt.setup(api)
			router := newTestWeb(t, api)

			w := get(router, HomePath, tt.loggedIn)
			if w.Code != http.StatusSeeOther || w.Header().Get("Location") != LoginPath {
				t.Fatalf("response = %d Location=%q, want redirect to %s", w.Code, w.Header().Get("Location"), LoginPath)
			}
			if strings.Contains(w.Body.String(), `id="home"`) {
				t.Error("protected view must not be rendered")
			}
			if got := api.meCalls.Load(); got != tt.wantCalls {
				t.Errorf("identity lookups = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestHome_WorkoutLoadFailure(t *testing.T) {
	api := newFakeAPI()
	api.listFails = true
	router := newTestWeb(t, api)

	w := get(router, HomePath, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if findByID(parseHTML(t, w.Body), "workouts-error") == nil {
		t.Error("expected load error message")
	}
}

func TestLogout(t *testing.T) {
	api := newFakeAPI()
	router := newTestWeb(t, api)

	w := post(router, "/logout", nil)

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != LoginPath {
		t.Fatalf("response = %d Location=%q, want redirect to login", w.Code, w.Header().Get("Location"))
	}
	if got := api.logoutCalls.Load(); got != 1 {
		t.Errorf("api logout calls = %d, want 1", got)
	}
	// ガードの照会1回 + ログアウト後の再照会1回
	if got := api.meCalls.Load(); got != 2 {
		t.Errorf("identity lookups = %d, want 2", got)
	}

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie should be cleared")
	}
}

func TestLogout_RequiresCSRFToken(t *testing.T) {
	api := newFakeAPI()
	router := newTestWeb(t, api)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if api.logoutCalls.Load() != 0 {
		t.Error("api logout must not be called")
	}
}

// --- ワークアウト画面 ---

func TestCreatePage(t *testing.T) {
	router := newTestWeb(t, newFakeAPI())

	w := get(router, "/workout/new", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	doc := parseHTML(t, w.Body)
	form := findByID(doc, "workout-form")
	if form == nil || attr(form, "data-form-type") != "create" || attr(form, "action") != "/workout" {
		t.Fatalf("form = %v", form)
	}
	if cancel := findByID(doc, "cancel"); cancel == nil || attr(cancel, "href") != HomePath {
		t.Errorf("cancel link = %v", cancel)
	}
	if rows := findAll(doc, inputNamed("plan_name")); len(rows) != blankPlanRows {
		t.Errorf("plan rows = %d, want %d", len(rows), blankPlanRows)
	}
	tokens := findAll(doc, inputNamed(middleware.CSRFFormField))
	if len(tokens) == 0 || attr(tokens[0], "value") == "" {
		t.Error("csrf token field should be filled")
	}
}

func TestEditPage(t *testing.T) {
	api := newFakeAPI()
	api.workouts["w1"] = model.Workout{
		ID: "w1", UserID: "u1", WorkoutName: "Push day", WorkoutDay: model.Wednesday,
		Plan: []model.WorkoutExercise{{Name: "Bench press", Sets: 5, Reps: 5, Weight: 82.5}},
	}
	router := newTestWeb(t, api)

	w := get(router, "/workout/w1/edit", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	doc := parseHTML(t, w.Body)

	form := findByID(doc, "workout-form")
	if form == nil || attr(form, "data-form-type") != "edit" || attr(form, "action") != "/workout/w1" {
		t.Fatalf("form = %v", form)
	}
	if cancel := findByID(doc, "cancel"); cancel == nil || attr(cancel, "href") != "/workout/w1" {
		t.Errorf("cancel link = %v", cancel)
	}
	names := findAll(doc, inputNamed("workoutName"))
	if len(names) != 1 || attr(names[0], "value") != "Push day" {
		t.Errorf("workoutName input = %v", names)
	}
	rows := findAll(doc, inputNamed("plan_name"))
	if len(rows) != 1+blankPlanRows || attr(rows[0], "value") != "Bench press" {
		t.Errorf("plan rows = %d", len(rows))
	}
	weights := findAll(doc, inputNamed("plan_weight"))
	if attr(weights[0], "value") != "82.5" {
		t.Errorf("weight = %q", attr(weights[0], "value"))
	}
	selected := findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "option" && hasAttr(n, "selected")
	})
	if len(selected) != 1 || attr(selected[0], "value") != string(model.Wednesday) {
		t.Errorf("selected day = %v", selected)
	}
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func TestShowWorkout_Errors(t *testing.T) {
	api := newFakeAPI()
	api.forbidden["w9"] = true
	router := newTestWeb(t, api)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "存在しないワークアウトは404", path: "/workout/missing", status: http.StatusNotFound},
		{name: "他人のワークアウトは403", path: "/workout/w9", status: http.StatusForbidden},
		{name: "編集画面も404", path: "/workout/missing/edit", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, tt.path, true)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if findByID(parseHTML(t, w.Body), "error") == nil {
				t.Error("error page not rendered")
			}
		})
	}
}

func TestCreateWorkout(t *testing.T) {
	t.Run("作成して詳細画面へ", func(t *testing.T) {
		api := newFakeAPI()
		router := newTestWeb(t, api)

		w := post(router, "/workout", url.Values{
			"workoutName": {"Leg day"},
			"workoutDay":  {"FRIDAY"},
			"plan_name":   {"Squat", ""},
			"plan_sets":   {"5", ""},
			"plan_reps":   {"5", ""},
			"plan_weight": {"100", ""},
		})
		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/workout/w-new" {
			t.Fatalf("response = %d Location=%q", w.Code, w.Header().Get("Location"))
		}
		if len(api.created) != 1 {
			t.Fatalf("created = %d", len(api.created))
		}
		d := api.created[0]
		if d.UserID != "u1" || d.WorkoutDay != model.Friday || len(d.Plan) != 1 || d.Plan[0].Weight != 100 {
			t.Errorf("created = %+v", d)
		}
	})

	t.Run("数値が不正ならフォームを再表示", func(t *testing.T) {
		api := newFakeAPI()
		router := newTestWeb(t, api)

		w := post(router, "/workout", url.Values{
			"workoutName": {"Leg day"},
			"workoutDay":  {"FRIDAY"},
			"plan_name":   {"Squat"},
			"plan_sets":   {"five"},
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		doc := parseHTML(t, w.Body)
		if msg := findByID(doc, "form-error"); msg == nil || !strings.Contains(text(msg), "Squat") {
			t.Errorf("form error = %v", msg)
		}
		names := findAll(doc, inputNamed("workoutName"))
		if len(names) != 1 || attr(names[0], "value") != "Leg day" {
			t.Error("form should keep the submitted values")
		}
		if len(api.created) != 0 {
			t.Error("api must not be called")
		}
	})

	t.Run("APIの検証エラーを表示", func(t *testing.T) {
		router := newTestWeb(t, newFakeAPI())

		w := post(router, "/workout", url.Values{"workoutName": {"reject"}, "workoutDay": {"MONDAY"}})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if msg := findByID(parseHTML(t, w.Body), "form-error"); msg == nil || !strings.Contains(text(msg), "workoutName is not allowed") {
			t.Errorf("form error = %v", msg)
		}
	})
}

func TestUpdateAndDeleteWorkout(t *testing.T) {
	api := newFakeAPI()
	api.workouts["w1"] = model.Workout{ID: "w1", UserID: "u1", WorkoutName: "Push day", WorkoutDay: model.Monday}
	router := newTestWeb(t, api)

	w := post(router, "/workout/w1", url.Values{"workoutName": {"Pull day"}, "workoutDay": {"TUESDAY"}, "description": {"back"}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/workout/w1" {
		t.Fatalf("update response = %d Location=%q", w.Code, w.Header().Get("Location"))
	}
	if len(api.edited) != 1 || api.edited[0].WorkoutName != "Pull day" || api.edited[0].WorkoutDay != model.Tuesday {
		t.Errorf("edited = %+v", api.edited)
	}

	w = get(router, "/workout/w1", true)
	doc := parseHTML(t, w.Body)
	if section := findByID(doc, "workout"); section == nil || !strings.Contains(text(section), "Pull day") {
		t.Errorf("detail page = %s", w.Body.String())
	}

	w = post(router, "/workout/w1/delete", nil)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != HomePath {
		t.Fatalf("delete response = %d Location=%q", w.Code, w.Header().Get("Location"))
	}
	if len(api.deleted) != 1 || api.deleted[0] != "w1" {
		t.Errorf("deleted = %v", api.deleted)
	}
}

func TestUpdateWorkout_InvalidDay(t *testing.T) {
	api := newFakeAPI()
	router := newTestWeb(t, api)

	w := post(router, "/workout/w1", url.Values{"workoutName": {"Pull day"}, "workoutDay": {"FUNDAY"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	doc := parseHTML(t, w.Body)
	form := findByID(doc, "workout-form")
	if form == nil || attr(form, "data-form-type") != "edit" {
		t.Errorf("form = %v", form)
	}
	if cancel := findByID(doc, "cancel"); cancel == nil || attr(cancel, "href") != "/workout/w1" {
		t.Errorf("cancel link = %v", cancel)
	}
	if len(api.edited) != 0 {
		t.Error("api must not be called")
	}
}
