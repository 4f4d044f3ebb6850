package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"pairspace-backend/internal/lockout"
	"pairspace-backend/internal/repository/memory"
	"pairspace-backend/internal/security"
	"pairspace-backend/internal/services"

	"github.com/gorilla/websocket"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler    http.Handler
	uploadsDir string
}

func newTestServer(t *testing.T, db fakePinger) *testServer {
	t.Helper()
	couples := memory.NewCouples()
	devices := memory.NewDevices()
	hub := services.NewWSHub()

	hasher := security.NewPasswordHasher(security.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1})
	coupleService := services.NewCoupleService(couples, devices, hasher, "test-secret")
	uploadsDir := t.TempDir()

	handler, err := newRouter(routerDeps{
		coupleService: coupleService,
		quizService:   services.NewQuizService(memory.NewQuizzes(), coupleService, lockout.DefaultPolicy(), hub),
		spaceService:  services.NewSpaceService(memory.NewSpaces(), couples, hub),
		mediaService:  services.NewMediaService(services.NewDiskStore(uploadsDir, uploadsURLPrefix), 1<<20),
		hub:           hub,
		db:            db,
		uploadsDir:    uploadsDir,
	})
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}
	return &testServer{handler: handler, uploadsDir: uploadsDir}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func registerBody(coupleID, password string) map[string]any {
	return map[string]any{
		"coupleId":        coupleID,
		"password":        password,
		"partnerOneName":  "Alice",
		"partnerOneEmail": "alice@example.com",
		"partnerTwoName":  "Bob",
	}
}

func (s *testServer) register(t *testing.T, coupleID string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/couple/register", "", registerBody(coupleID, "secret123"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	var creds struct {
		Token    string `json:"token"`
		CoupleID string `json:"coupleId"`
	}
	decode(t, rec, &creds)
	return creds.Token
}

type errorBody struct {
	Error        string     `json:"error"`
	Code         string     `json:"code"`
	LockedUntil  *time.Time `json:"lockedUntil"`
	AttemptsLeft *int       `json:"attemptsLeft"`
}

func TestRegisterFlatBody(t *testing.T) {
	s := newTestServer(t, fakePinger{})

	raw := `{"coupleId":"abc","password":"secret1","partnerOneName":"Alice","partnerOneEmail":"alice@example.com","partnerTwoName":"Bob","partnerTwoEmail":"bob@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/couple/register", strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	var creds struct {
		Token string `json:"token"`
	}
	decode(t, rec, &creds)

	rec = s.do(t, http.MethodGet, "/api/couple/token/"+creds.Token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}
	var couple struct {
		PartnerOne struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"partnerOne"`
		PartnerTwo struct {
			Name string `json:"name"`
		} `json:"partnerTwo"`
	}
	decode(t, rec, &couple)
	if couple.PartnerOne.Name != "Alice" || couple.PartnerOne.Email != "alice@example.com" || couple.PartnerTwo.Name != "Bob" {
		t.Errorf("resolved couple = %+v", couple)
	}
}

func TestCoupleRoutes(t *testing.T) {
	s := newTestServer(t, fakePinger{})
	token := s.register(t, "alice-bob")

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"duplicate register", "/api/couple/register", registerBody("alice-bob", "secret123"), http.StatusBadRequest, "CONFLICT"},
		{"short password", "/api/couple/register", registerBody("carol-dave", "12345"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad email", "/api/couple/register", map[string]any{
			"coupleId": "carol-dave", "password": "secret123",
			"partnerOneName": "Carol", "partnerOneEmail": "nope", "partnerTwoName": "Dave",
		}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing partner name", "/api/couple/register", map[string]any{
			"coupleId": "carol-dave", "password": "secret123", "partnerOneName": "Carol",
		}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing body", "/api/couple/login", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"wrong password", "/api/couple/login", map[string]string{"coupleId": "alice-bob", "password": "nope-nope"}, http.StatusUnauthorized, "AUTH_ERROR"},
		{"unknown couple", "/api/couple/login", map[string]string{"coupleId": "nobody", "password": "secret123"}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, "", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			var body errorBody
			decode(t, rec, &body)
			if body.Code != tt.wantErr || body.Error == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}

	rec := s.do(t, http.MethodPost, "/api/couple/login", "", map[string]string{"coupleId": "alice-bob", "password": "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	var creds struct {
		Token string `json:"token"`
	}
	decode(t, rec, &creds)
	if creds.Token != token {
		t.Error("login token differs from the registration token")
	}

	rec = s.do(t, http.MethodGet, "/api/couple/token/"+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "argon2") || strings.Contains(rec.Body.String(), token) {
		t.Errorf("resolve leaked credentials: %s", rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/api/couple/token/unknown", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown token status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/couple/devices", token, map[string]string{"partnerName": "Bob", "deviceToken": "abc123"})
	if rec.Code != http.StatusCreated {
		t.Errorf("device status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestQuizRoutes(t *testing.T) {
	s := newTestServer(t, fakePinger{})
	token := s.register(t, "alice-bob")
	other := s.register(t, "carol-dave")

	quiz := map[string]any{
		"coupleId":  "alice-bob",
		"createdBy": "Alice",
		"questions": []map[string]string{
			{"question": "Where did we meet?", "answer": "Paris"},
			{"question": "First concert?", "answer": "Radiohead"},
		},
	}
	if rec := s.do(t, http.MethodPost, "/api/quiz/create", other, quiz); rec.Code != http.StatusForbidden {
		t.Errorf("foreign token status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/quiz/create", "", quiz); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/quiz/create", token, quiz); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/quiz/"+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Radiohead") {
		t.Errorf("public quiz leaked answers: %s", rec.Body.String())
	}

	submit := "/api/quiz/" + token + "/submit"
	wrong := map[string]any{"answers": []string{"London", "Muse"}}
	for i := 1; i <= 5; i++ {
		rec := s.do(t, http.MethodPost, submit, "", wrong)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d status = %d", i, rec.Code)
		}
		var body errorBody
		decode(t, rec, &body)
		if body.Code != "INCORRECT_ANSWERS" || body.AttemptsLeft == nil || *body.AttemptsLeft != 5-i {
			t.Fatalf("attempt %d body = %s", i, rec.Body.String())
		}
		if i == 5 && body.LockedUntil == nil {
			t.Error("fifth failure should report lockedUntil")
		}
	}

	rec = s.do(t, http.MethodPost, submit, "", map[string]any{"answers": []string{"paris", "radiohead"}})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("locked status = %d", rec.Code)
	}
	var body errorBody
	decode(t, rec, &body)
	if body.Code != "RATE_LIMITED" || body.LockedUntil == nil || !body.LockedUntil.After(time.Now()) {
		t.Errorf("locked body = %s", rec.Body.String())
	}
}

func TestQuizSubmitSuccess(t *testing.T) {
	s := newTestServer(t, fakePinger{})
	token := s.register(t, "alice-bob")
	s.do(t, http.MethodPost, "/api/quiz/create", token, map[string]any{
		"coupleId":  "alice-bob",
		"createdBy": "Bob",
		"questions": []map[string]string{{"question": "a?", "answer": "A"}, {"question": "b?", "answer": "B"}},
	})

	rec := s.do(t, http.MethodPost, "/api/quiz/"+token+"/submit", "", map[string]any{"answers": []string{"a", " b "}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
}

type spaceBody struct {
	ID      string `json:"id"`
	Gallery []struct {
		ID        string `json:"id"`
		Reactions []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"reactions"`
	} `json:"gallery"`
	Notes []struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		AddedBy string `json:"addedBy"`
	} `json:"notes"`
}

func TestPersonalSpaceRoutes(t *testing.T) {
	s := newTestServer(t, fakePinger{})
	token := s.register(t, "alice-bob")
	other := s.register(t, "carol-dave")
	base := "/api/personal-space/alice-bob"

	if rec := s.do(t, http.MethodGet, base, token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get before create status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/personal-space", token, map[string]string{"coupleId": "alice-bob"}); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/personal-space", token, map[string]string{"coupleId": "alice-bob"}); rec.Code != http.StatusOK {
		t.Errorf("second create status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/personal-space", other, map[string]string{"coupleId": "alice-bob"}); rec.Code != http.StatusForbidden {
		t.Errorf("foreign create status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, base, other, nil); rec.Code != http.StatusForbidden {
		t.Errorf("foreign get status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, base, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous get status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, base+"/videos", token, map[string]string{"addedBy": "Alice"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, base+"/notes", token, map[string]string{"addedBy": "Alice", "content": "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add note status = %d, body %s", rec.Code, rec.Body.String())
	}
	var space spaceBody
	decode(t, rec, &space)
	noteID := space.Notes[0].ID

	rec = s.do(t, http.MethodPut, base+"/notes/"+noteID, token, map[string]string{"content": "hello again", "editedBy": "Bob"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body %s", rec.Code, rec.Body.String())
	}
	space = spaceBody{}
	decode(t, rec, &space)
	if len(space.Notes) != 1 || space.Notes[0].Content != "hello again" || space.Notes[0].AddedBy != "Alice" {
		t.Errorf("notes after edit = %+v", space.Notes)
	}

	rec = s.do(t, http.MethodPost, base+"/gallery", token, map[string]string{"addedBy": "Bob", "imageUrl": "/uploads/images/alice-bob/x.jpg"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add photo status = %d", rec.Code)
	}
	space = spaceBody{}
	decode(t, rec, &space)
	photoID := space.Gallery[0].ID

	reaction := base + "/gallery/" + photoID + "/reaction"
	if rec := s.do(t, http.MethodPost, reaction, token, map[string]string{"type": "HEART", "addedBy": "Alice"}); rec.Code != http.StatusCreated {
		t.Fatalf("reaction status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, reaction, token, map[string]string{"type": "ANGRY", "addedBy": "Alice"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad reaction status = %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, reaction, token, map[string]string{"type": "WOW", "addedBy": "Alice"})
	space = spaceBody{}
	decode(t, rec, &space)
	reactions := space.Gallery[0].Reactions
	if len(reactions) != 1 || reactions[0].Type != "WOW" {
		t.Fatalf("reactions = %+v", reactions)
	}

	rec = s.do(t, http.MethodDelete, reaction, token, map[string]string{"reactionId": reactions[0].ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove reaction status = %d", rec.Code)
	}

	if rec := s.do(t, http.MethodDelete, base+"/notes/"+noteID, token, nil); rec.Code != http.StatusOK {
		t.Errorf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodDelete, base+"/notes/"+noteID, token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rec.Code)
	}
}

func TestUploadRoute(t *testing.T) {
	s := newTestServer(t, fakePinger{})
	token := s.register(t, "alice-bob")

	upload := func(field, contentType string, content []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="pic.png"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/upload/image", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("image", "image/png", []byte("png-data"))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		FilePath string `json:"filePath"`
	}
	decode(t, rec, &result)
	if !strings.HasPrefix(result.FilePath, "/uploads/images/alice-bob/") || !strings.HasSuffix(result.FilePath, ".png") {
		t.Fatalf("filePath = %q", result.FilePath)
	}

	served := httptest.NewRecorder()
	s.handler.ServeHTTP(served, httptest.NewRequest(http.MethodGet, result.FilePath, nil))
	if served.Code != http.StatusOK || served.Body.String() != "png-data" {
		t.Errorf("serving upload: status %d body %q", served.Code, served.Body.String())
	}

	listing := httptest.NewRecorder()
	s.handler.ServeHTTP(listing, httptest.NewRequest(http.MethodGet, "/uploads/images/", nil))
	if listing.Code != http.StatusNotFound {
		t.Errorf("directory listing status = %d", listing.Code)
	}

	if rec := upload("image", "text/plain", []byte("text")); rec.Code != http.StatusBadRequest {
		t.Errorf("text upload status = %d", rec.Code)
	}
	if rec := upload("song", "image/png", []byte("x")); rec.Code != http.StatusBadRequest {
		t.Errorf("wrong field status = %d", rec.Code)
	}
	if rec := upload("image", "image/png", bytes.Repeat([]byte("x"), 3<<20)); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized upload status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/upload/presign", token, map[string]string{"kind": "image", "filename": "a.png", "contentType": "image/png"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("presign on disk backend status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	ok := newTestServer(t, fakePinger{})
	if rec := ok.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d", rec.Code)
	}

	down := newTestServer(t, fakePinger{err: errors.New("connection refused")})
	if rec := down.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}

func TestWebSocketReceivesSpaceEvents(t *testing.T) {
	s := newTestServer(t, fakePinger{})
	token := s.register(t, "alice-bob")
	s.do(t, http.MethodPost, "/api/personal-space", token, map[string]string{"coupleId": "alice-bob"})

	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token="

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"bad", nil); err == nil {
		t.Fatal("dial with a bad token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token response = %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+token, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg services.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "hello" || msg.CoupleID != "alice-bob" || msg.Online != 1 {
		t.Errorf("hello = %+v", msg)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	msg = services.WSMessage{}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "pong" {
		t.Fatalf("pong = %+v, err %v", msg, err)
	}

	s.do(t, http.MethodPost, "/api/personal-space/alice-bob/notes", token, map[string]string{"addedBy": "Bob", "content": "hi"})
	msg = services.WSMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "event" || msg.Event == nil || msg.Event.Action != services.ActionItemAdded || msg.Event.Actor != "Bob" {
		t.Errorf("event = %+v", msg)
	}
}
