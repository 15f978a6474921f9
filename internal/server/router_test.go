package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bbff-chat/apiserver/internal/auth"
	"github.com/bbff-chat/apiserver/internal/events"
	"github.com/bbff-chat/apiserver/internal/metrics"
	"github.com/bbff-chat/apiserver/internal/middleware"
	"github.com/bbff-chat/apiserver/internal/storage"
	"github.com/bbff-chat/apiserver/internal/store"
	"github.com/bbff-chat/apiserver/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	tokens  *auth.TokenService
	objects *storage.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	objects := storage.NewMemory("transcripts")
	tokens := auth.NewTokenService(fmt.Sprintf("secret-%s", t.Name()), time.Hour)

	router := NewRouter(Deps{
		Users:       mem.Users(),
		Chats:       mem.Chats(),
		Messages:    mem.Messages(),
		Tokens:      tokens,
		Hasher:      auth.BcryptHasher{Cost: bcrypt.MinCost},
		Events:      events.NewPublisher(nil),
		Transcripts: storage.NewStorage(objects),
		Metrics:     metrics.New(),
		Logger:      zerolog.Nop(),
	})
	return &testServer{t: t, handler: router, tokens: tokens, objects: objects}
}

func (s *testServer) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	raw := bytes.TrimSpace(rec.Body.Bytes())
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			s.t.Fatalf("unmarshal %s %s response: %v", method, path, err)
		}
	} else if len(raw) > 0 && raw[0] == '[' {
		var list []any
		if err := json.Unmarshal(raw, &list); err != nil {
			s.t.Fatalf("unmarshal %s %s response: %v", method, path, err)
		}
		out["items"] = list
	}
	return rec.Code, out
}

func (s *testServer) register(username, role string) (int, string) {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/register", "", map[string]string{
		"username":  username,
		"email":     username + "@x.com",
		"password":  "p1",
		"role_name": role,
	})
	if code != http.StatusCreated {
		s.t.Fatalf("register %s status = %d, body = %v", username, code, body)
	}
	user := body["user"].(map[string]any)
	return int(user["id"].(float64)), body["token"].(string)
}

func (s *testServer) createChat(token, title string) int {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/chats", token, map[string]string{"title": title})
	if code != http.StatusCreated {
		s.t.Fatalf("create chat status = %d, body = %v", code, body)
	}
	return int(body["id"].(float64))
}

func (s *testServer) createMessage(token string, chatID int, content string) int {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/messages", token, map[string]any{"chat_id": chatID, "content": content})
	if code != http.StatusCreated {
		s.t.Fatalf("create message status = %d, body = %v", code, body)
	}
	return int(body["messageData"].(map[string]any)["id"].(float64))
}

func TestRegisterLoginExample(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(http.MethodPost, "/register", "", map[string]string{
		"username": "alice",
		"password": "p1",
		"email":    "a@x.com",
	})
	if code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %v", code, body)
	}
	if body["role"] != types.RoleUser || body["message"] == nil {
		t.Fatalf("register body = %v", body)
	}
	if _, leaked := body["user"].(map[string]any)["password_hash"]; leaked {
		t.Fatal("register response exposes password hash")
	}
	t1, err := s.tokens.Verify(body["token"].(string))
	if err != nil {
		t.Fatalf("verify T1: %v", err)
	}

	code, body = s.do(http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "p1"})
	if code != http.StatusOK {
		t.Fatalf("login status = %d, body = %v", code, body)
	}
	t2, err := s.tokens.Verify(body["token"].(string))
	if err != nil {
		t.Fatalf("verify T2: %v", err)
	}
	if t1.ID != t2.ID || t1.Role != t2.Role {
		t.Fatalf("T1 %+v and T2 %+v disagree on subject", t1, t2)
	}

	code, _ = s.do(http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", code)
	}
}

func TestLoginUnknownUserIsNotFound(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "")

	attempts := []struct{ username, password string }{
		{"bob", "p1"},
		{"ALICE", "p1"},
		{"nobody", "wrong"},
	}
	for _, a := range attempts {
		code, _ := s.do(http.MethodPost, "/login", "", map[string]string{"username": a.username, "password": a.password})
		if code != http.StatusNotFound {
			t.Fatalf("login(%q) status = %d, want 404", a.username, code)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{name: "missing email", body: map[string]string{"username": "bob", "password": "p"}, want: http.StatusBadRequest},
		{name: "duplicate username", body: map[string]string{"username": "alice", "email": "z@x.com", "password": "p"}, want: http.StatusConflict},
		{name: "duplicate email", body: map[string]string{"username": "zed", "email": "alice@x.com", "password": "p"}, want: http.StatusConflict},
		{name: "unknown role", body: map[string]string{"username": "bob", "email": "b@x.com", "password": "p", "role": "root"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := s.do(http.MethodPost, "/register", "", tt.body); code != tt.want {
				t.Fatalf("status = %d, want %d, body = %v", code, tt.want, body)
			}
		})
	}

	code, _ := s.do(http.MethodPost, "/login", "", map[string]string{"username": "bob", "password": "p"})
	if code != http.StatusNotFound {
		t.Fatalf("rejected registration left an account: login status = %d", code)
	}
}

func TestRegisterRoleName(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(http.MethodPost, "/register", "", map[string]string{
		"username": "root", "email": "root@x.com", "password": "p1", "role_name": types.RoleAdmin,
	})
	if code != http.StatusCreated || body["role"] != types.RoleAdmin {
		t.Fatalf("register with role_name admin = %d %v", code, body)
	}
	if code, _ := s.do(http.MethodGet, "/users", body["token"].(string), nil); code != http.StatusOK {
		t.Fatalf("list users with admin token status = %d, want 200", code)
	}

	code, body = s.do(http.MethodPost, "/register", "", map[string]string{
		"username": "eve", "email": "eve@x.com", "password": "p1", "role_name": "superuser",
	})
	if code != http.StatusBadRequest || body["error"] != "role not found" {
		t.Fatalf("register with unknown role_name = %d %v, want 400 role not found", code, body)
	}
	if code, _ := s.do(http.MethodPost, "/login", "", map[string]string{"username": "eve", "password": "p1"}); code != http.StatusNotFound {
		t.Fatalf("unknown role left an account: login status = %d", code)
	}

	code, body = s.do(http.MethodPost, "/register", "", map[string]string{
		"username": "bob", "email": "bob@x.com", "password": "p1", "role": types.RoleAdmin,
	})
	if code != http.StatusCreated || body["role"] != types.RoleAdmin {
		t.Fatalf("register with role alias = %d %v", code, body)
	}
}

func TestAuthGate(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register("alice", "")

	expired := auth.NewTokenService(fmt.Sprintf("secret-%s", t.Name()), time.Nanosecond)
	stale, _ := expired.Issue(auth.Identity{ID: 1, Username: "alice", Role: "user"})
	time.Sleep(time.Millisecond)

	forged, _ := auth.NewTokenService("other", time.Hour).Issue(auth.Identity{ID: 1, Role: "admin"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: http.StatusForbidden},
		{name: "garbage", header: "Bearer nonsense", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, want: http.StatusUnauthorized},
		{name: "forged", header: "Bearer " + forged, want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + stale, want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRoleGate(t *testing.T) {
	s := newTestServer(t)
	_, userToken := s.register("alice", "")
	bobID, _ := s.register("bob", "")
	_, adminToken := s.register("root", types.RoleAdmin)

	adminRoutes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/users", nil},
		{http.MethodPut, fmt.Sprintf("/users/%d", bobID), map[string]string{"role": "admin"}},
		{http.MethodDelete, fmt.Sprintf("/users/%d", bobID), nil},
	}
	for _, route := range adminRoutes {
		code, body := s.do(route.method, route.path, userToken, route.body)
		if code != http.StatusForbidden {
			t.Fatalf("%s %s as user status = %d, want 403", route.method, route.path, code)
		}
		if body["error"] != "access denied: insufficient permissions" {
			t.Fatalf("%s %s as user body = %v", route.method, route.path, body)
		}
	}

	code, body := s.do(http.MethodGet, "/users", adminToken, nil)
	if code != http.StatusOK || len(body["items"].([]any)) != 3 {
		t.Fatalf("list users as admin = %d %v", code, body)
	}
}

func TestStaleRoleIsTrustedUntilExpiry(t *testing.T) {
	s := newTestServer(t)
	carolID, carolToken := s.register("carol", "")
	_, adminToken := s.register("root", types.RoleAdmin)

	code, _ := s.do(http.MethodPut, fmt.Sprintf("/users/%d", carolID), adminToken, map[string]string{"role": "admin"})
	if code != http.StatusOK {
		t.Fatalf("promote status = %d", code)
	}

	if code, _ := s.do(http.MethodGet, "/users", carolToken, nil); code != http.StatusForbidden {
		t.Fatalf("old token after promotion status = %d, want 403", code)
	}

	_, body := s.do(http.MethodPost, "/login", "", map[string]string{"username": "carol", "password": "p1"})
	if code, _ := s.do(http.MethodGet, "/users", body["token"].(string), nil); code != http.StatusOK {
		t.Fatalf("fresh token after promotion status = %d, want 200", code)
	}
}

func TestDemotedAdminKeepsAccessUntilExpiry(t *testing.T) {
	s := newTestServer(t)
	daveID, daveToken := s.register("dave", types.RoleAdmin)
	_, adminToken := s.register("root", types.RoleAdmin)

	code, _ := s.do(http.MethodPut, fmt.Sprintf("/users/%d", daveID), adminToken, map[string]string{"role": types.RoleUser})
	if code != http.StatusOK {
		t.Fatalf("demote status = %d", code)
	}

	if code, _ := s.do(http.MethodGet, "/users", daveToken, nil); code != http.StatusOK {
		t.Fatalf("old admin token after demotion status = %d, want 200", code)
	}

	_, body := s.do(http.MethodPost, "/login", "", map[string]string{"username": "dave", "password": "p1"})
	if code, _ := s.do(http.MethodGet, "/users", body["token"].(string), nil); code != http.StatusForbidden {
		t.Fatalf("fresh token after demotion status = %d, want 403", code)
	}
}

func TestProfileSelfOnly(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.register("alice", "")
	bobID, _ := s.register("bob", "")

	code, _ := s.do(http.MethodPut, fmt.Sprintf("/users/profile/%d", bobID), aliceToken, map[string]string{"username": "x"})
	if code != http.StatusForbidden {
		t.Fatalf("update other profile status = %d, want 403", code)
	}
	code, _ = s.do(http.MethodPut, fmt.Sprintf("/users/profile/%d", aliceID), aliceToken, map[string]string{})
	if code != http.StatusBadRequest {
		t.Fatalf("empty update status = %d, want 400", code)
	}
	code, body := s.do(http.MethodPut, fmt.Sprintf("/users/profile/%d", aliceID), aliceToken, map[string]string{"email": "new@x.com"})
	if code != http.StatusOK || body["user"].(map[string]any)["email"] != "new@x.com" {
		t.Fatalf("update own profile = %d %v", code, body)
	}
	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/users/profile/%d", bobID), aliceToken, nil)
	if code != http.StatusForbidden {
		t.Fatalf("delete other profile status = %d, want 403", code)
	}
	code, _ = s.do(http.MethodGet, "/users/abc", aliceToken, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("non-numeric id status = %d, want 400", code)
	}
	code, _ = s.do(http.MethodGet, "/users/9999", aliceToken, nil)
	if code != http.StatusNotFound {
		t.Fatalf("missing user status = %d, want 404", code)
	}
}

func TestForeignChatLooksMissing(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.register("alice", "")
	_, bobToken := s.register("bob", "")
	chatID := s.createChat(aliceToken, "general")
	missing := chatID + 1000

	ops := []struct {
		method string
		body   any
	}{
		{http.MethodGet, nil},
		{http.MethodPut, map[string]string{"title": "mine"}},
		{http.MethodDelete, nil},
		{http.MethodPost, nil},
	}
	for _, op := range ops {
		suffix := ""
		if op.method == http.MethodPost {
			suffix = "/export"
		}
		foreignCode, foreignBody := s.do(op.method, fmt.Sprintf("/chats/%d%s", chatID, suffix), bobToken, op.body)
		missingCode, missingBody := s.do(op.method, fmt.Sprintf("/chats/%d%s", missing, suffix), bobToken, op.body)
		if foreignCode != http.StatusNotFound || missingCode != http.StatusNotFound {
			t.Fatalf("%s: foreign = %d, missing = %d, want 404 for both", op.method, foreignCode, missingCode)
		}
		if foreignBody["error"] != missingBody["error"] {
			t.Fatalf("%s: foreign body %v differs from missing body %v", op.method, foreignBody, missingBody)
		}
	}

	code, body := s.do(http.MethodGet, fmt.Sprintf("/chats/%d", chatID), aliceToken, nil)
	if code != http.StatusOK || body["title"] != "general" {
		t.Fatalf("alice fetch after bob's attempts = %d %v", code, body)
	}
}

func TestForeignMessageLooksMissing(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.register("alice", "")
	_, bobToken := s.register("bob", "")
	chatID := s.createChat(aliceToken, "general")
	messageID := s.createMessage(aliceToken, chatID, "hello")

	code, _ := s.do(http.MethodPost, "/messages", bobToken, map[string]any{"chat_id": chatID, "content": "hi"})
	if code != http.StatusNotFound {
		t.Fatalf("post into foreign chat status = %d, want 404", code)
	}
	code, _ = s.do(http.MethodGet, fmt.Sprintf("/messages?chat_id=%d", chatID), bobToken, nil)
	if code != http.StatusNotFound {
		t.Fatalf("list foreign chat status = %d, want 404", code)
	}

	for _, id := range []int{messageID, messageID + 1000} {
		if code, _ := s.do(http.MethodPut, fmt.Sprintf("/messages/%d", id), bobToken, map[string]string{"content": "x"}); code != http.StatusNotFound {
			t.Fatalf("update message %d as bob status = %d, want 404", id, code)
		}
		if code, _ := s.do(http.MethodDelete, fmt.Sprintf("/messages/%d", id), bobToken, nil); code != http.StatusNotFound {
			t.Fatalf("delete message %d as bob status = %d, want 404", id, code)
		}
	}

	code, body := s.do(http.MethodGet, fmt.Sprintf("/messages?chat_id=%d", chatID), aliceToken, nil)
	if code != http.StatusOK || len(body["messageData"].([]any)) != 1 {
		t.Fatalf("alice list = %d %v", code, body)
	}
	if code, _ := s.do(http.MethodGet, "/messages", aliceToken, nil); code != http.StatusBadRequest {
		t.Fatalf("list without chat_id status = %d, want 400", code)
	}
}

func TestChatTitleRoundTrip(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register("alice", "")
	chatID := s.createChat(token, "first")

	code, _ := s.do(http.MethodPut, fmt.Sprintf("/chats/%d", chatID), token, map[string]string{"title": "second"})
	if code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	code, body := s.do(http.MethodGet, fmt.Sprintf("/chats/%d", chatID), token, nil)
	if code != http.StatusOK || body["title"] != "second" {
		t.Fatalf("get after update = %d %v", code, body)
	}
	if code, _ := s.do(http.MethodPut, fmt.Sprintf("/chats/%d", chatID), token, map[string]string{"title": ""}); code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d, want 400", code)
	}
}

func TestAccountDeletionCascades(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.register("alice", "")
	_, adminToken := s.register("root", types.RoleAdmin)
	chatID := s.createChat(aliceToken, "general")
	messageID := s.createMessage(aliceToken, chatID, "hello")

	code, _ := s.do(http.MethodDelete, fmt.Sprintf("/users/profile/%d", aliceID), aliceToken, nil)
	if code != http.StatusOK {
		t.Fatalf("delete own account status = %d", code)
	}

	// The token outlives the account; every owned resource is gone.
	if code, _ := s.do(http.MethodGet, fmt.Sprintf("/chats/%d", chatID), aliceToken, nil); code != http.StatusNotFound {
		t.Fatalf("chat after account deletion status = %d, want 404", code)
	}
	if code, _ := s.do(http.MethodPut, fmt.Sprintf("/messages/%d", messageID), aliceToken, map[string]string{"content": "x"}); code != http.StatusNotFound {
		t.Fatalf("message after account deletion status = %d, want 404", code)
	}
	if code, _ := s.do(http.MethodGet, fmt.Sprintf("/users/%d", aliceID), adminToken, nil); code != http.StatusNotFound {
		t.Fatalf("user after deletion status = %d, want 404", code)
	}
	if code, _ := s.do(http.MethodDelete, fmt.Sprintf("/users/%d", aliceID), adminToken, nil); code != http.StatusNotFound {
		t.Fatalf("admin delete of missing user status = %d, want 404", code)
	}
}

func TestDeletedAccountCannotCreateChat(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.register("alice", "")

	if code, _ := s.do(http.MethodDelete, fmt.Sprintf("/users/profile/%d", aliceID), aliceToken, nil); code != http.StatusOK {
		t.Fatalf("delete own account status = %d", code)
	}

	code, body := s.do(http.MethodPost, "/chats", aliceToken, map[string]string{"title": "ghost"})
	if code != http.StatusNotFound {
		t.Fatalf("create chat after account deletion = %d %v, want 404", code, body)
	}
	if code, body := s.do(http.MethodGet, "/chats", aliceToken, nil); code != http.StatusOK || len(body["items"].([]any)) != 0 {
		t.Fatalf("list chats after account deletion = %d %v", code, body)
	}
}

func TestExportTranscript(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register("alice", "")
	chatID := s.createChat(token, "general")
	s.createMessage(token, chatID, "hello")

	code, body := s.do(http.MethodPost, fmt.Sprintf("/chats/%d/export", chatID), token, nil)
	if code != http.StatusCreated {
		t.Fatalf("export status = %d, body = %v", code, body)
	}
	key := body["key"].(string)
	if !strings.HasPrefix(key, fmt.Sprintf("chats/%d/transcript-", chatID)) {
		t.Fatalf("export key = %q", key)
	}

	var transcript types.Transcript
	if err := storage.NewStorage(s.objects).GetJSON(context.Background(), key, &transcript); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if transcript.Chat.Title != "general" || len(transcript.Messages) != 1 {
		t.Fatalf("transcript = %+v", transcript)
	}
}

func TestTranscriptFetchAndDelete(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.register("alice", "")
	_, bobToken := s.register("bob", "")
	chatID := s.createChat(aliceToken, "general")
	s.createMessage(aliceToken, chatID, "hello")

	code, body := s.do(http.MethodPost, fmt.Sprintf("/chats/%d/export", chatID), aliceToken, nil)
	if code != http.StatusCreated {
		t.Fatalf("export status = %d, body = %v", code, body)
	}
	path := fmt.Sprintf("/chats/%d/transcripts/%d", chatID, int64(body["exported_at"].(float64)))

	code, body = s.do(http.MethodGet, path, aliceToken, nil)
	if code != http.StatusOK || body["chat"].(map[string]any)["title"] != "general" || len(body["messages"].([]any)) != 1 {
		t.Fatalf("fetch transcript = %d %v", code, body)
	}

	if code, body := s.do(http.MethodGet, path, bobToken, nil); code != http.StatusNotFound || body["error"] != "transcript not found" {
		t.Fatalf("fetch foreign transcript = %d %v, want 404", code, body)
	}
	if code, _ := s.do(http.MethodDelete, path, bobToken, nil); code != http.StatusNotFound {
		t.Fatalf("delete foreign transcript status = %d, want 404", code)
	}
	if code, _ := s.do(http.MethodGet, fmt.Sprintf("/chats/%d/transcripts/abc", chatID), aliceToken, nil); code != http.StatusBadRequest {
		t.Fatalf("non-numeric timestamp status = %d, want 400", code)
	}

	if code, _ := s.do(http.MethodDelete, path, aliceToken, nil); code != http.StatusOK {
		t.Fatalf("delete transcript status = %d", code)
	}
	if keys := s.objects.Keys(); len(keys) != 0 {
		t.Fatalf("objects after delete = %v", keys)
	}
	if code, _ := s.do(http.MethodGet, path, aliceToken, nil); code != http.StatusNotFound {
		t.Fatalf("fetch deleted transcript status = %d, want 404", code)
	}
}

func TestExportDisabledWithoutStorage(t *testing.T) {
	mem := store.NewMemory()
	tokens := auth.NewTokenService("secret", time.Hour)
	router := NewRouter(Deps{
		Users:    mem.Users(),
		Chats:    mem.Chats(),
		Messages: mem.Messages(),
		Tokens:   tokens,
		Hasher:   auth.BcryptHasher{Cost: bcrypt.MinCost},
		Events:   events.NewPublisher(nil),
		Logger:   zerolog.Nop(),
	})
	s := &testServer{t: t, handler: router, tokens: tokens}
	_, token := s.register("alice", "")
	chatID := s.createChat(token, "general")

	if code, _ := s.do(http.MethodPost, fmt.Sprintf("/chats/%d/export", chatID), token, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("export without storage status = %d, want 503", code)
	}
}

func newLimitedServer(t *testing.T, trustProxy bool) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := store.NewMemory()
	tokens := auth.NewTokenService("secret", time.Hour)
	router := NewRouter(Deps{
		Users:      mem.Users(),
		Chats:      mem.Chats(),
		Messages:   mem.Messages(),
		Tokens:     tokens,
		Hasher:     auth.BcryptHasher{Cost: bcrypt.MinCost},
		Events:     events.NewPublisher(nil),
		Metrics:    metrics.New(),
		Limiter:    middleware.NewRateLimiter(ctx, 0.001, 2, time.Minute),
		Logger:     zerolog.Nop(),
		TrustProxy: trustProxy,
	})
	return &testServer{t: t, handler: router, tokens: tokens}
}

// loginFrom posts a failed login with the given X-Forwarded-For value.
func (s *testServer) loginFrom(forwardedFor string) int {
	s.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"nobody","password":"p"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestLoginRateLimited(t *testing.T) {
	s := newLimitedServer(t, false)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		code, _ := s.do(http.MethodPost, "/login", "", map[string]string{"username": "nobody", "password": "p"})
		codes = append(codes, code)
	}
	if codes[0] != http.StatusNotFound || codes[1] != http.StatusNotFound || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("login statuses = %v, want [404 404 429]", codes)
	}
}

func TestLoginRateLimitIgnoresForwardedFor(t *testing.T) {
	s := newLimitedServer(t, false)

	codes := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		codes = append(codes, s.loginFrom(fmt.Sprintf("203.0.113.%d", i+1)))
	}
	for i, code := range codes {
		want := http.StatusTooManyRequests
		if i < 2 {
			want = http.StatusNotFound
		}
		if code != want {
			t.Fatalf("login statuses with rotating X-Forwarded-For = %v, want 429 after the second", codes)
		}
	}
}

func TestLoginRateLimitTrustedProxy(t *testing.T) {
	s := newLimitedServer(t, true)

	for i := 0; i < 3; i++ {
		if code := s.loginFrom("203.0.113.1"); i == 2 && code != http.StatusTooManyRequests {
			t.Fatalf("third login from one forwarded client status = %d, want 429", code)
		}
	}
	if code := s.loginFrom("203.0.113.2"); code != http.StatusNotFound {
		t.Fatalf("login from another forwarded client status = %d, want 404", code)
	}
}

func TestHealthAndBanner(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/", "/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, rec.Code)
		}
	}
}
