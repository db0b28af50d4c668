package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/credential"
	"example.com/socialfeed/internal/oracle"
	"example.com/socialfeed/internal/session"
	"example.com/socialfeed/internal/social"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/upload"
	"example.com/socialfeed/internal/util"
	"golang.org/x/crypto/bcrypt"
)

//
// --- Setup test server ---
//

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *store.MockStore
	kafka *appkafka.MockKafka
	base  string
}

func setupTestServer(t *testing.T, basePath string) *testEnv {
	t.Helper()
	return setupWithStore(t, store.NewMock(), basePath)
}

func setupWithStore(t *testing.T, st *store.MockStore, basePath string) *testEnv {
	t.Helper()

	mk := &appkafka.MockKafka{}
	pub := appkafka.NewEventPublisher(mk)
	clock := util.NewRealClock()
	sessions := session.NewManager(st, "test-secret", time.Hour, clock)

	saver, err := upload.NewSaver(filepath.Join(t.TempDir(), "uploads"), clock)
	if err != nil {
		t.Fatalf("NewSaver failed: %v", err)
	}

	factSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fact":"Cats purr."}`))
	}))
	t.Cleanup(factSrv.Close)
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"url":"https://img/cat.jpg"}]`))
	}))
	t.Cleanup(imgSrv.Close)

	s := New(
		social.NewAccountService(st, sessions, credential.NewBcrypt(bcrypt.MinCost), pub, clock),
		social.NewFeedService(st, pub, clock),
		sessions,
		saver,
		oracle.New(factSrv.URL, imgSrv.URL, time.Second),
		Options{BasePath: basePath, CookieName: "sid", SessionTTL: time.Hour, UploadMaxBytes: 1 << 20},
	)

	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)

	return &testEnv{srv: s, ts: ts, store: st, kafka: mk, base: ts.URL + s.opts.BasePath}
}

//
// --- Helpers ---
//

// newClient returns a client with its own cookie jar, one per simulated user.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New failed: %v", err)
	}
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any, expectedStatus int) map[string]any {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected %d, got %d: %s", expectedStatus, resp.StatusCode, string(b))
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode failed: %v (%s)", err, string(b))
	}
	return out
}

func expectSuccess(t *testing.T, res map[string]any) {
	t.Helper()
	if res["success"] != true {
		t.Fatalf("expected success, got %v", res)
	}
}

func expectMessage(t *testing.T, res map[string]any, msg string) {
	t.Helper()
	if res["success"] != false || res["message"] != msg {
		t.Fatalf("expected failure %q, got %v", msg, res)
	}
}

func registerAndLogin(t *testing.T, env *testEnv, name string) *http.Client {
	t.Helper()
	c := newClient(t)
	expectSuccess(t, doJSON(t, c, http.MethodPost, env.base+"/users",
		map[string]any{"username": name, "password": "pw-" + name}, http.StatusOK))
	expectSuccess(t, doJSON(t, c, http.MethodPost, env.base+"/login",
		map[string]any{"username": name, "password": "pw-" + name}, http.StatusOK))
	return c
}

func resultTexts(t *testing.T, res map[string]any) []string {
	t.Helper()
	items, ok := res["results"].([]any)
	if !ok {
		t.Fatalf("results missing: %v", res)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.(map[string]any)["text"].(string))
	}
	return out
}

//
// --- Tests ---
//

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestServer(t, "")
	c := newClient(t)

	expectSuccess(t, doJSON(t, c, http.MethodPost, env.base+"/users",
		map[string]any{"username": "almaz", "password": "secret"}, http.StatusOK))

	dup := doJSON(t, newClient(t), http.MethodPost, env.base+"/users",
		map[string]any{"username": "almaz", "password": "other"}, http.StatusOK)
	expectMessage(t, dup, "Username taken")

	bad := doJSON(t, c, http.MethodPost, env.base+"/login",
		map[string]any{"username": "almaz", "password": "wrong"}, http.StatusOK)
	expectMessage(t, bad, "Invalid login")

	missing := doJSON(t, c, http.MethodPost, env.base+"/login",
		map[string]any{"username": "almaz"}, http.StatusOK)
	expectMessage(t, missing, "Missing fields")

	res := doJSON(t, c, http.MethodPost, env.base+"/login",
		map[string]any{"username": "almaz", "password": "secret"}, http.StatusOK)
	expectSuccess(t, res)
	if res["username"] != "almaz" || res["followerCount"] != float64(0) {
		t.Fatalf("unexpected login response: %v", res)
	}

	status := doJSON(t, c, http.MethodGet, env.base+"/login", nil, http.StatusOK)
	if status["loggedIn"] != true || status["username"] != "almaz" {
		t.Fatalf("expected logged in session, got %v", status)
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	env := setupTestServer(t, "")
	expectSuccess(t, doJSON(t, newClient(t), http.MethodPost, env.base+"/users",
		map[string]any{"username": "nur", "password": "pw"}, http.StatusOK))

	body := bytes.NewBufferString(`{"username":"nur","password":"pw"}`)
	resp, err := http.Post(env.base+"/login", "application/json", body)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	defer resp.Body.Close()

	var sid *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			sid = c
		}
	}
	if sid == nil || sid.Value == "" {
		t.Fatalf("expected sid cookie")
	}
	if !sid.HttpOnly || sid.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes: %+v", sid)
	}
}

func TestLogout(t *testing.T) {
	env := setupTestServer(t, "")
	c := registerAndLogin(t, env, "almaz")

	expectSuccess(t, doJSON(t, c, http.MethodDelete, env.base+"/login", nil, http.StatusOK))

	status := doJSON(t, c, http.MethodGet, env.base+"/login", nil, http.StatusOK)
	if status["loggedIn"] != false {
		t.Fatalf("expected logged out, got %v", status)
	}
	if len(env.store.Sessions) != 0 {
		t.Fatalf("session record should be removed")
	}

	// logging out without a session still succeeds
	expectSuccess(t, doJSON(t, newClient(t), http.MethodDelete, env.base+"/login", nil, http.StatusOK))
}

func TestUpdateBio(t *testing.T) {
	env := setupTestServer(t, "")

	anon := doJSON(t, newClient(t), http.MethodPost, env.base+"/users",
		map[string]any{"bio": "hi"}, http.StatusOK)
	expectMessage(t, anon, "Missing fields")

	c := registerAndLogin(t, env, "almaz")
	expectSuccess(t, doJSON(t, c, http.MethodPost, env.base+"/users",
		map[string]any{"bio": "hello world"}, http.StatusOK))

	stats := doJSON(t, c, http.MethodGet, env.base+"/users?q=__me_stats", nil, http.StatusOK)
	expectSuccess(t, stats)
	if stats["mode"] != "stats" || stats["bio"] != "hello world" {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestProfileStats_NotLoggedIn(t *testing.T) {
	env := setupTestServer(t, "")
	res := doJSON(t, newClient(t), http.MethodGet, env.base+"/users?q=__me_stats", nil, http.StatusOK)
	expectMessage(t, res, "Not logged in")
}

// full flow: follow -> post -> feed
func TestFollowAndFeedFlow(t *testing.T) {
	env := setupTestServer(t, "")
	almaz := registerAndLogin(t, env, "almaz")
	nur := registerAndLogin(t, env, "nur")
	bek := registerAndLogin(t, env, "bek")

	empty := doJSON(t, almaz, http.MethodGet, env.base+"/feed", nil, http.StatusOK)
	if len(resultTexts(t, empty)) != 0 {
		t.Fatalf("expected empty personal feed, got %v", empty)
	}

	expectSuccess(t, doJSON(t, almaz, http.MethodPost, env.base+"/follow",
		map[string]any{"username": "nur"}, http.StatusOK))
	expectSuccess(t, doJSON(t, almaz, http.MethodPost, env.base+"/follow",
		map[string]any{"username": "bek"}, http.StatusOK))

	expectSuccess(t, doJSON(t, nur, http.MethodPost, env.base+"/contents",
		map[string]any{"text": "Hello from Nur!"}, http.StatusOK))
	expectSuccess(t, doJSON(t, bek, http.MethodPost, env.base+"/contents",
		map[string]any{"text": "", "imageUrl": "/uploads/cat.png"}, http.StatusOK))
	expectSuccess(t, doJSON(t, almaz, http.MethodPost, env.base+"/contents",
		map[string]any{"text": "my own"}, http.StatusOK))

	feed := doJSON(t, almaz, http.MethodGet, env.base+"/feed", nil, http.StatusOK)
	got := resultTexts(t, feed)
	if len(got) != 2 || got[0] != "" || got[1] != "Hello from Nur!" {
		t.Fatalf("unexpected personal feed: %v", got)
	}

	following := doJSON(t, almaz, http.MethodGet, env.base+"/follow", nil, http.StatusOK)
	expectSuccess(t, following)
	if list, _ := following["following"].([]any); len(list) != 2 {
		t.Fatalf("expected 2 followed accounts, got %v", following)
	}

	expectSuccess(t, doJSON(t, almaz, http.MethodDelete, env.base+"/follow",
		map[string]any{"username": "bek"}, http.StatusOK))
	feed = doJSON(t, almaz, http.MethodGet, env.base+"/feed", nil, http.StatusOK)
	if got := resultTexts(t, feed); len(got) != 1 {
		t.Fatalf("expected 1 post after unfollow, got %v", got)
	}

	if len(env.kafka.Written()) != 5 {
		t.Fatalf("expected 2 follow + 3 post events, got %d", len(env.kafka.Written()))
	}
}

func TestFollowErrors(t *testing.T) {
	env := setupTestServer(t, "")
	c := registerAndLogin(t, env, "almaz")

	expectMessage(t, doJSON(t, newClient(t), http.MethodPost, env.base+"/follow",
		map[string]any{"username": "nur"}, http.StatusOK), "Not logged in")
	expectMessage(t, doJSON(t, c, http.MethodPost, env.base+"/follow",
		map[string]any{"username": "almaz"}, http.StatusOK), "Cannot follow yourself")
	expectMessage(t, doJSON(t, c, http.MethodPost, env.base+"/follow",
		map[string]any{}, http.StatusOK), "Missing username")
	expectMessage(t, doJSON(t, c, http.MethodDelete, env.base+"/follow",
		map[string]any{}, http.StatusOK), "Missing username")

	expectSuccess(t, doJSON(t, c, http.MethodPost, env.base+"/follow",
		map[string]any{"username": "nur"}, http.StatusOK))
	expectMessage(t, doJSON(t, c, http.MethodPost, env.base+"/follow",
		map[string]any{"username": "nur"}, http.StatusOK), "Already following")

	anon := doJSON(t, newClient(t), http.MethodGet, env.base+"/follow", nil, http.StatusOK)
	expectMessage(t, anon, "Not logged in")
	if list, ok := anon["following"].([]any); !ok || len(list) != 0 {
		t.Fatalf("expected empty following list, got %v", anon)
	}
}

func TestPublishErrors(t *testing.T) {
	env := setupTestServer(t, "")

	expectMessage(t, doJSON(t, newClient(t), http.MethodPost, env.base+"/contents",
		map[string]any{"text": "hi"}, http.StatusOK), "Not logged in")

	c := registerAndLogin(t, env, "almaz")
	expectMessage(t, doJSON(t, c, http.MethodPost, env.base+"/contents",
		map[string]any{"text": ""}, http.StatusOK), "Missing content")

	expectMessage(t, doJSON(t, newClient(t), http.MethodGet, env.base+"/feed", nil, http.StatusOK), "Not logged in")
}

func TestGlobalFeedSearch(t *testing.T) {
	env := setupTestServer(t, "")
	c := registerAndLogin(t, env, "almaz")

	for _, text := range []string{"Cats are great", "dogs", "I saw a CAT"} {
		expectSuccess(t, doJSON(t, c, http.MethodPost, env.base+"/contents",
			map[string]any{"text": text}, http.StatusOK))
	}

	all := resultTexts(t, doJSON(t, newClient(t), http.MethodGet, env.base+"/contents", nil, http.StatusOK))
	if len(all) != 3 || all[0] != "I saw a CAT" {
		t.Fatalf("unexpected global feed: %v", all)
	}

	cats := resultTexts(t, doJSON(t, newClient(t), http.MethodGet, env.base+"/contents?q=cat", nil, http.StatusOK))
	if len(cats) != 2 {
		t.Fatalf("expected 2 matches, got %v", cats)
	}

	res := doJSON(t, newClient(t), http.MethodGet, env.base+"/contents", nil, http.StatusOK)
	first := res["results"].([]any)[0].(map[string]any)
	if first["username"] != "almaz" || first["imageUrl"] != nil {
		t.Fatalf("unexpected post json: %v", first)
	}
	if _, err := time.Parse(time.RFC3339, first["createdAt"].(string)); err != nil {
		t.Fatalf("createdAt is not RFC3339: %v", err)
	}
}

func TestSearchAccounts(t *testing.T) {
	env := setupTestServer(t, "")
	almaz := registerAndLogin(t, env, "almaz")
	registerAndLogin(t, env, "Almira")
	registerAndLogin(t, env, "nur")

	expectSuccess(t, doJSON(t, almaz, http.MethodPost, env.base+"/follow",
		map[string]any{"username": "Almira"}, http.StatusOK))

	res := doJSON(t, newClient(t), http.MethodGet, env.base+"/users?q=alm", nil, http.StatusOK)
	items := res["results"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 results, got %v", res)
	}
	first := items[0].(map[string]any)
	if first["username"] != "Almira" || first["followerCount"] != float64(1) {
		t.Fatalf("unexpected first result: %v", first)
	}
}

func TestActivityEndpoint(t *testing.T) {
	env := setupTestServer(t, "")

	expectMessage(t, doJSON(t, newClient(t), http.MethodGet, env.base+"/activity", nil, http.StatusOK), "Not logged in")

	c := registerAndLogin(t, env, "almaz")
	res := doJSON(t, c, http.MethodGet, env.base+"/activity?limit=5", nil, http.StatusOK)
	expectSuccess(t, res)
}

// invalid JSON for creating user
func TestCreateUser_InvalidJSON(t *testing.T) {
	env := setupTestServer(t, "")

	body := []byte(`{"username":123}`)
	resp, err := http.Post(env.base+"/users", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// invalid JSON for follow
func TestFollow_InvalidJSON(t *testing.T) {
	env := setupTestServer(t, "")
	c := registerAndLogin(t, env, "almaz")

	req, err := http.NewRequest(http.MethodPost, env.base+"/follow", bytes.NewBufferString(`{"username":1}`))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// store failure surfaces as "Server error" without failing the process
func TestStoreFailure(t *testing.T) {
	st := store.NewMock()
	env := setupWithStore(t, st, "")
	c := registerAndLogin(t, env, "almaz")

	st.SetFail(true)
	res := doJSON(t, newClient(t), http.MethodPost, env.base+"/users",
		map[string]any{"username": "nur", "password": "pw"}, http.StatusOK)
	expectMessage(t, res, "Server error")

	global := doJSON(t, c, http.MethodGet, env.base+"/contents", nil, http.StatusOK)
	if global["error"] != "Server error" {
		t.Fatalf("expected error field, got %v", global)
	}

	st.SetFail(false)
	expectSuccess(t, doJSON(t, newClient(t), http.MethodPost, env.base+"/users",
		map[string]any{"username": "nur", "password": "pw"}, http.StatusOK))
}

func TestUpload(t *testing.T) {
	env := setupTestServer(t, "/api")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("uploadFile", "cat.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	_, _ = fw.Write([]byte("png-bytes"))
	_ = mw.Close()

	resp, err := http.Post(env.base+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()

	var res map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || res["upload"] != true {
		t.Fatalf("unexpected upload response %d: %v", resp.StatusCode, res)
	}

	url := res["url"].(string)
	if url != "/api/uploads/"+res["filename"].(string) {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := os.Stat(filepath.Join(env.srv.uploads.Dir(), res["filename"].(string))); err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}

	get, err := http.Get(env.ts.URL + url)
	if err != nil {
		t.Fatalf("fetch upload failed: %v", err)
	}
	defer get.Body.Close()
	data, _ := io.ReadAll(get.Body)
	if get.StatusCode != http.StatusOK || string(data) != "png-bytes" {
		t.Fatalf("unexpected served file %d: %q", get.StatusCode, data)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	env := setupTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()

	resp, err := http.Post(env.base+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var res map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&res)
	if res["upload"] != false || res["error"] != "File missing" {
		t.Fatalf("unexpected response: %v", res)
	}
}

func TestOracle(t *testing.T) {
	env := setupTestServer(t, "")
	res := doJSON(t, newClient(t), http.MethodGet, env.base+"/oracle", nil, http.StatusOK)
	expectSuccess(t, res)
	if res["fact"] != "Cats purr." || res["imageUrl"] != "https://img/cat.jpg" {
		t.Fatalf("unexpected oracle response: %v", res)
	}
}

func TestOracle_Fallback(t *testing.T) {
	env := setupTestServer(t, "")
	env.srv.oracle = oracle.New("http://127.0.0.1:1/fact", "http://127.0.0.1:1/img", 200*time.Millisecond)

	res := doJSON(t, newClient(t), http.MethodGet, env.base+"/oracle", nil, http.StatusOK)
	expectMessage(t, res, "Could not load mystic oracle")
	if res["fact"] != oracle.SleepingFact || res["imageUrl"] != nil {
		t.Fatalf("unexpected fallback: %v", res)
	}
}

func TestHealthAndBasePath(t *testing.T) {
	env := setupTestServer(t, "/api/")

	res := doJSON(t, newClient(t), http.MethodGet, env.ts.URL+"/api/test", nil, http.StatusOK)
	if res["message"] != "Server working" {
		t.Fatalf("unexpected health response: %v", res)
	}

	resp, err := http.Get(env.ts.URL + "/test")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, "")
	registerAndLogin(t, env, "almaz")

	resp, err := http.Get(env.base + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("login_success_total")) {
		t.Fatalf("metrics missing login counter")
	}
}
