// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/authz"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/realtime"
	"github.com/tomtom215/parley/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "error",
		Format: "json",
		Output: io.Discard,
	})
}

type broadcast struct {
	roomID string
	event  realtime.EventName
}

// fakeRealtime records broadcasts and serves canned live state.
type fakeRealtime struct {
	mu         sync.Mutex
	broadcasts []broadcast
	direct     map[string][]realtime.Outbound
	online     map[string]bool
	live       map[string][]string
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		direct: make(map[string][]realtime.Outbound),
		online: make(map[string]bool),
		live:   make(map[string][]string),
	}
}

func (f *fakeRealtime) BroadcastToRoom(roomID string, ev realtime.Outbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcast{roomID, ev.Name()})
}

func (f *fakeRealtime) SendToPrincipal(principalID string, ev realtime.Outbound) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[principalID] {
		return false
	}
	f.direct[principalID] = append(f.direct[principalID], ev)
	return true
}

func (f *fakeRealtime) ActiveParticipants(roomID string) []string { return f.live[roomID] }
func (f *fakeRealtime) TypingUsers(string) []realtime.TypingUser  { return nil }
func (f *fakeRealtime) ConnectedPrincipalCount() int              { return len(f.online) }
func (f *fakeRealtime) ActiveRoomCount() int                      { return len(f.live) }
func (f *fakeRealtime) ConnectionCount() int                      { return len(f.online) }
func (f *fakeRealtime) PresenceBreakerState() string              { return "closed" }

func (f *fakeRealtime) events() []broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast(nil), f.broadcasts...)
}

type apiEnv struct {
	server *httptest.Server
	store  *store.Store
	rt     *fakeRealtime
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         strings.Repeat("s", 32),
			TokenTTL:          time.Hour,
			BcryptCost:        4,
			RateLimitDisabled: true,
		},
	}
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	cfg := testConfig()

	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtm, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	svc := authz.NewService(enforcer, st)
	rt := newFakeRealtime()

	handler := NewHandler(st, jwtm, svc, rt, cfg)
	chiMW := NewChiMiddlewareFromSecurity(nil, 0, 0, true)
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	router := NewRouter(handler, chiMW, authz.NewMiddleware(svc), jwtm, ws)

	server := httptest.NewServer(router.SetupChi())
	t.Cleanup(server.Close)
	return &apiEnv{server: server, store: st, rt: rt}
}

// call performs a request and decodes the envelope. out may be nil.
func (e *apiEnv) call(t *testing.T, method, path, token string, body interface{}, out interface{}) (int, *models.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		return resp.StatusCode, nil
	}
	var env struct {
		models.APIResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return resp.StatusCode, &env.APIResponse
}

func (e *apiEnv) register(t *testing.T, username string) (token, id string) {
	t.Helper()
	var tok TokenResponse
	code, env := e.call(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Username:    username,
		Password:    "correct-horse",
		DisplayName: strings.ToUpper(username[:1]) + username[1:],
	}, &tok)
	if code != http.StatusCreated {
		t.Fatalf("register %s: status %d, %+v", username, code, env.Error)
	}
	return tok.Token, tok.User.ID
}

func (e *apiEnv) createRoom(t *testing.T, token, name string) *models.Room {
	t.Helper()
	var room models.Room
	code, env := e.call(t, http.MethodPost, "/api/v1/rooms", token, CreateRoomRequest{Name: name}, &room)
	if code != http.StatusCreated {
		t.Fatalf("create room: status %d, %+v", code, env.Error)
	}
	return &room
}

func (e *apiEnv) addMember(t *testing.T, token, roomID, userID string, role models.Role) int {
	t.Helper()
	code, _ := e.call(t, http.MethodPost, "/api/v1/rooms/"+roomID+"/members", token,
		AddMemberRequest{UserID: userID, Role: string(role)}, nil)
	return code
}

func errorCode(env *models.APIResponse) string {
	if env == nil || env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	e := newAPIEnv(t)
	_, id := e.register(t, "alice")

	tests := []struct {
		name     string
		req      LoginRequest
		wantCode int
	}{
		{"valid", LoginRequest{Username: "alice", Password: "correct-horse"}, http.StatusOK},
		{"wrong password", LoginRequest{Username: "alice", Password: "wrong-horse"}, http.StatusUnauthorized},
		{"unknown user", LoginRequest{Username: "mallory", Password: "correct-horse"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tok TokenResponse
			code, env := e.call(t, http.MethodPost, "/api/v1/auth/login", "", tt.req, &tok)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%+v)", code, tt.wantCode, env.Error)
			}
			if code != http.StatusOK {
				if errorCode(env) != "INVALID_CREDENTIALS" {
					t.Errorf("error code = %q, want INVALID_CREDENTIALS", errorCode(env))
				}
				return
			}
			var me models.User
			if code, _ := e.call(t, http.MethodGet, "/api/v1/me", tok.Token, nil, &me); code != http.StatusOK {
				t.Fatalf("/me status = %d", code)
			}
			if me.ID != id || me.DisplayName != "Alice" {
				t.Errorf("/me = %+v, want alice", me)
			}
		})
	}
}

func TestAuth_RegisterValidation(t *testing.T) {
	e := newAPIEnv(t)
	e.register(t, "alice")

	tests := []struct {
		name     string
		req      RegisterRequest
		wantCode int
		wantErr  string
	}{
		{"duplicate username", RegisterRequest{Username: "alice", Password: "password1", DisplayName: "A"}, http.StatusConflict, "USERNAME_TAKEN"},
		{"short password", RegisterRequest{Username: "bob", Password: "short", DisplayName: "B"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad username", RegisterRequest{Username: "bob smith", Password: "password1", DisplayName: "B"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing display name", RegisterRequest{Username: "bob", Password: "password1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := e.call(t, http.MethodPost, "/api/v1/auth/register", "", tt.req, nil)
			if code != tt.wantCode || errorCode(env) != tt.wantErr {
				t.Fatalf("got %d %q, want %d %q", code, errorCode(env), tt.wantCode, tt.wantErr)
			}
			if env.Error.Details["value"] != nil {
				t.Error("validation details echo the submitted value")
			}
		})
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	e := newAPIEnv(t)

	code, env := e.call(t, http.MethodGet, "/api/v1/rooms", "", nil, nil)
	if code != http.StatusUnauthorized || errorCode(env) != "AUTH_REQUIRED" {
		t.Errorf("no token: %d %q", code, errorCode(env))
	}
	code, env = e.call(t, http.MethodGet, "/api/v1/rooms", "not-a-jwt", nil, nil)
	if code != http.StatusUnauthorized || errorCode(env) != "AUTH_FAILED" {
		t.Errorf("bad token: %d %q", code, errorCode(env))
	}
}

func TestRooms_CreateListUpdate(t *testing.T) {
	e := newAPIEnv(t)
	alice, aliceID := e.register(t, "alice")
	bob, bobID := e.register(t, "bob")

	room := e.createRoom(t, alice, "general")
	if room.CreatedBy != aliceID {
		t.Errorf("CreatedBy = %q, want %q", room.CreatedBy, aliceID)
	}

	var rooms []models.Room
	code, env := e.call(t, http.MethodGet, "/api/v1/rooms", alice, nil, &rooms)
	if code != http.StatusOK || len(rooms) != 1 || env.Metadata.Count == nil || *env.Metadata.Count != 1 {
		t.Fatalf("list rooms = %d %v", code, rooms)
	}

	// bob is not a member yet
	name := "renamed"
	code, env = e.call(t, http.MethodPatch, "/api/v1/rooms/"+room.ID, bob, UpdateRoomRequest{Name: &name}, nil)
	if code != http.StatusForbidden || errorCode(env) != "NOT_A_MEMBER" {
		t.Fatalf("outsider update: %d %q", code, errorCode(env))
	}

	if code := e.addMember(t, alice, room.ID, bobID, models.RoleModerator); code != http.StatusCreated {
		t.Fatalf("add member status = %d", code)
	}
	code, env = e.call(t, http.MethodPatch, "/api/v1/rooms/"+room.ID, bob, UpdateRoomRequest{Name: &name}, nil)
	if code != http.StatusForbidden || errorCode(env) != "FORBIDDEN" {
		t.Fatalf("moderator update: %d %q", code, errorCode(env))
	}

	var updated models.Room
	code, _ = e.call(t, http.MethodPatch, "/api/v1/rooms/"+room.ID, alice, UpdateRoomRequest{Name: &name}, &updated)
	if code != http.StatusOK || updated.Name != "renamed" {
		t.Fatalf("admin update: %d %+v", code, updated)
	}
	got := e.rt.events()
	if len(got) != 1 || got[0] != (broadcast{room.ID, realtime.EventRoomUpdated}) {
		t.Errorf("broadcasts = %v, want one roomUpdated", got)
	}

	code, env = e.call(t, http.MethodPatch, "/api/v1/rooms/"+room.ID, alice, UpdateRoomRequest{}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("empty update: %d %q", code, errorCode(env))
	}
}

func TestMembers_RoleRules(t *testing.T) {
	e := newAPIEnv(t)
	alice, _ := e.register(t, "alice")
	mod, modID := e.register(t, "mod")
	member, memberID := e.register(t, "member")
	_, carolID := e.register(t, "carol")
	room := e.createRoom(t, alice, "general")

	if code := e.addMember(t, alice, room.ID, modID, models.RoleModerator); code != http.StatusCreated {
		t.Fatalf("admin adds moderator: %d", code)
	}
	if code := e.addMember(t, mod, room.ID, memberID, ""); code != http.StatusCreated {
		t.Fatalf("moderator adds member: %d", code)
	}
	if code := e.addMember(t, member, room.ID, carolID, ""); code != http.StatusForbidden {
		t.Errorf("member adds member: %d, want 403", code)
	}
	if code := e.addMember(t, mod, room.ID, carolID, models.RoleAdmin); code != http.StatusForbidden {
		t.Errorf("moderator grants admin: %d, want 403", code)
	}
	if code := e.addMember(t, alice, room.ID, "ghost", ""); code != http.StatusNotFound {
		t.Errorf("unknown user: %d, want 404", code)
	}
	code, env := e.call(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/members", alice,
		AddMemberRequest{UserID: carolID, Role: "owner"}, nil)
	if code != http.StatusBadRequest || errorCode(env) != "VALIDATION_ERROR" {
		t.Errorf("invalid role: %d %q", code, errorCode(env))
	}

	var members []models.Membership
	if code, _ := e.call(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/members", member, nil, &members); code != http.StatusOK {
		t.Fatalf("list members: %d", code)
	}
	if len(members) != 3 {
		t.Errorf("members = %d, want 3", len(members))
	}
}

func TestMessages_Lifecycle(t *testing.T) {
	e := newAPIEnv(t)
	alice, _ := e.register(t, "alice")
	bob, bobID := e.register(t, "bob")
	carol, carolID := e.register(t, "carol")
	room := e.createRoom(t, alice, "general")
	e.addMember(t, alice, room.ID, bobID, models.RoleMember)
	e.addMember(t, alice, room.ID, carolID, models.RoleModerator)
	base := "/api/v1/rooms/" + room.ID + "/messages"

	var msg models.Message
	code, _ := e.call(t, http.MethodPost, base, bob, MessageRequest{Content: "hello"}, &msg)
	if code != http.StatusCreated || msg.Content != "hello" || msg.RoomID != room.ID {
		t.Fatalf("post: %d %+v", code, msg)
	}

	// Only the author edits.
	code, env := e.call(t, http.MethodPatch, base+"/"+msg.ID, alice, MessageRequest{Content: "hijack"}, nil)
	if code != http.StatusForbidden || errorCode(env) != "FORBIDDEN" {
		t.Errorf("non-author edit: %d %q", code, errorCode(env))
	}
	var edited models.Message
	code, _ = e.call(t, http.MethodPatch, base+"/"+msg.ID, bob, MessageRequest{Content: "hello, world"}, &edited)
	if code != http.StatusOK || edited.Content != "hello, world" || edited.EditedAt == nil {
		t.Fatalf("author edit: %d %+v", code, edited)
	}

	var history []models.Message
	if code, _ := e.call(t, http.MethodGet, base+"?limit=10", alice, nil, &history); code != http.StatusOK || len(history) != 1 {
		t.Fatalf("history: %d %v", code, history)
	}
	if code, _ := e.call(t, http.MethodGet, base+"?limit=0", alice, nil, nil); code != http.StatusBadRequest {
		t.Errorf("limit=0: %d, want 400", code)
	}

	// A plain member cannot delete someone else's message; a moderator can.
	var other models.Message
	e.call(t, http.MethodPost, base, alice, MessageRequest{Content: "from alice"}, &other)
	if code, _ := e.call(t, http.MethodDelete, base+"/"+other.ID, bob, nil, nil); code != http.StatusForbidden {
		t.Errorf("member deletes other's message: %d, want 403", code)
	}
	if code, _ := e.call(t, http.MethodDelete, base+"/"+other.ID, carol, nil, nil); code != http.StatusNoContent {
		t.Errorf("moderator delete: %d, want 204", code)
	}
	if code, _ := e.call(t, http.MethodDelete, base+"/"+msg.ID, bob, nil, nil); code != http.StatusNoContent {
		t.Errorf("author delete: %d, want 204", code)
	}
	if code, _ := e.call(t, http.MethodDelete, base+"/"+msg.ID, bob, nil, nil); code != http.StatusNotFound {
		t.Errorf("second delete: %d, want 404", code)
	}

	want := []realtime.EventName{
		realtime.EventNewMessage,
		realtime.EventMessageUpdated,
		realtime.EventNewMessage,
		realtime.EventMessageDeleted,
		realtime.EventMessageDeleted,
	}
	got := e.rt.events()
	if len(got) != len(want) {
		t.Fatalf("broadcasts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].event != want[i] || got[i].roomID != room.ID {
			t.Errorf("broadcast[%d] = %v, want %s in %s", i, got[i], want[i], room.ID)
		}
	}
}

func TestMessages_OutsiderDenied(t *testing.T) {
	e := newAPIEnv(t)
	alice, _ := e.register(t, "alice")
	eve, _ := e.register(t, "eve")
	room := e.createRoom(t, alice, "general")

	code, env := e.call(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", eve, MessageRequest{Content: "hi"}, nil)
	if code != http.StatusForbidden || errorCode(env) != "NOT_A_MEMBER" {
		t.Errorf("outsider post: %d %q", code, errorCode(env))
	}
	if len(e.rt.events()) != 0 {
		t.Error("denied post was broadcast")
	}
}

func TestNotify(t *testing.T) {
	e := newAPIEnv(t)
	alice, _ := e.register(t, "alice")
	bob, bobID := e.register(t, "bob")
	_, carolID := e.register(t, "carol")
	room := e.createRoom(t, alice, "general")
	e.addMember(t, alice, room.ID, bobID, models.RoleMember)

	path := "/api/v1/users/" + bobID + "/notify"

	var resp NotifyResponse
	code, env := e.call(t, http.MethodPost, path, alice, NotifyRequest{Message: "ping"}, &resp)
	if code != http.StatusOK || resp.Delivered {
		t.Fatalf("offline notify: %d %+v %q", code, resp, errorCode(env))
	}

	e.rt.mu.Lock()
	e.rt.online[bobID] = true
	e.rt.mu.Unlock()
	code, _ = e.call(t, http.MethodPost, path, alice, NotifyRequest{Message: "ping"}, &resp)
	if code != http.StatusOK || !resp.Delivered {
		t.Fatalf("online notify: %d %+v", code, resp)
	}
	e.rt.mu.Lock()
	got := e.rt.direct[bobID]
	e.rt.mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("direct events = %d, want 1", len(got))
	}
	if n, ok := got[0].(realtime.NotificationEvent); !ok || n.Message != "ping" || n.FromUsername != "Alice" {
		t.Errorf("notification = %+v", got[0])
	}

	if code, _ := e.call(t, http.MethodPost, "/api/v1/users/"+carolID+"/notify", alice, NotifyRequest{Message: "x"}, nil); code != http.StatusForbidden {
		t.Errorf("notify outside shared rooms: %d, want 403", code)
	}
	if code, _ := e.call(t, http.MethodPost, "/api/v1/users/"+bobID+"/notify", bob, NotifyRequest{Message: "x"}, nil); code != http.StatusForbidden {
		t.Errorf("member notify: %d, want 403", code)
	}
	if code, _ := e.call(t, http.MethodPost, "/api/v1/users/ghost/notify", alice, NotifyRequest{Message: "x"}, nil); code != http.StatusNotFound {
		t.Errorf("notify unknown user: %d, want 404", code)
	}
}

func TestPresenceAndStats(t *testing.T) {
	e := newAPIEnv(t)
	alice, aliceID := e.register(t, "alice")
	room := e.createRoom(t, alice, "general")
	e.rt.live[room.ID] = []string{aliceID}
	e.rt.online[aliceID] = true

	var presence PresenceResponse
	if code, _ := e.call(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/presence", alice, nil, &presence); code != http.StatusOK {
		t.Fatalf("presence status = %d", code)
	}
	if len(presence.Participants) != 1 || presence.Participants[0] != aliceID || presence.Typing == nil {
		t.Errorf("presence = %+v", presence)
	}

	var stats StatsResponse
	if code, _ := e.call(t, http.MethodGet, "/api/v1/stats", alice, nil, &stats); code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	if stats != (StatsResponse{ConnectedUsers: 1, Connections: 1, ActiveRooms: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHealth(t *testing.T) {
	e := newAPIEnv(t)

	if code, env := e.call(t, http.MethodGet, "/health/live", "", nil, nil); code != http.StatusOK || env.Status != "success" {
		t.Errorf("live = %d", code)
	}

	var ready map[string]interface{}
	code, env := e.call(t, http.MethodGet, "/health/ready", "", nil, &ready)
	if code != http.StatusOK || env.Status != "ready" || ready["store_connected"] != true {
		t.Errorf("ready = %d %v", code, ready)
	}

	closed, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	_ = closed.Close()
	h := NewHandler(closed, nil, nil, e.rt, testConfig())
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"not_ready"`) {
		t.Errorf("ready with closed store = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_MiscRoutes(t *testing.T) {
	e := newAPIEnv(t)
	e.call(t, http.MethodGet, "/health/live", "", nil, nil)

	resp, err := http.Get(e.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "api_requests_total") {
		t.Errorf("/metrics = %d", resp.StatusCode)
	}

	resp, err = http.Get(e.server.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("/ws not routed to websocket handler: %d", resp.StatusCode)
	}

	if code, env := e.call(t, http.MethodGet, "/nope", "", nil, nil); code != http.StatusNotFound || errorCode(env) != "NOT_FOUND" {
		t.Errorf("unknown route = %d %q", code, errorCode(env))
	}
}
