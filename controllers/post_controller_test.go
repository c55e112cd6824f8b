package controllers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kvfeed/kvfeed/config"
	"github.com/kvfeed/kvfeed/feed"
	"github.com/kvfeed/kvfeed/identity"
	"github.com/kvfeed/kvfeed/kv"
	"github.com/kvfeed/kvfeed/models"
	"github.com/kvfeed/kvfeed/routes"
	"github.com/kvfeed/kvfeed/utils"
)

const frontend = "http://frontend.example"

func TestMain(m *testing.M) {
	if err := utils.InitLogger(config.AppConfig{LogLevel: "error"}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// authStub is the external auth service: /verify echoes a fixed identity,
// /auth/{username} issues a session cookie.
type authStub struct {
	verifyIdentity string
	sessionCookie  string
	verifyCalls    int
	registered     []string
}

func (a *authStub) start(t testing.TB) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		a.verifyCalls++
		w.Write([]byte(a.verifyIdentity))
	})
	mux.HandleFunc("/auth/", func(w http.ResponseWriter, r *http.Request) {
		a.registered = append(a.registered, strings.TrimPrefix(r.URL.Path, "/auth/"))
		if a.sessionCookie != "" {
			w.Header().Set("Set-Cookie", a.sessionCookie)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newRouter(t testing.TB, authURL string, store kv.Store) *gin.Engine {
	t.Helper()
	return routes.SetupRouter(config.AppConfig{
		GinMode:            "test",
		GinPath:            filepath.Join(t.TempDir(), "gin.log"),
		FrontendURL:        frontend,
		AuthServerURL:      authURL,
		RateLimitPerMinute: 10000,
		LogLevel:           "error",
	}, store)
}

func TestCreatePost(t *testing.T) {
	ctx := context.Background()

	t.Run("first post by a new user registers and relays the session cookie", func(t *testing.T) {
		stub := &authStub{sessionCookie: "session=fresh; HttpOnly"}
		store := kv.NewMemoryStore()
		router := newRouter(t, stub.start(t).URL, store)

		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/posts",
			`{"username":"alice","title":"hi","content":"hello"}`))

		assertStatus(t, response.Code, http.StatusOK)
		if got := response.Header().Get("Set-Cookie"); got != "session=fresh; HttpOnly" {
			t.Errorf("got Set-Cookie %q, want the auth server's verbatim", got)
		}
		if len(stub.registered) != 1 || stub.registered[0] != "alice" {
			t.Errorf("got auth registrations %v, want exactly [alice]", stub.registered)
		}

		var stored models.Post
		decodeBody(t, response, &stored)
		if stored.Time == "" {
			t.Error("response post carries no server-assigned time")
		}
		if _, err := store.Get(ctx, identity.Namespace, "alice"); err != nil {
			t.Errorf("registry did not gain alice: %v", err)
		}
		if _, err := store.Get(ctx, feed.Namespace, feed.PostKey("alice", stored.Time)); err != nil {
			t.Errorf("post not stored under its reconstructible key: %v", err)
		}
	})

	t.Run("second post by the same user triggers no further registration", func(t *testing.T) {
		stub := &authStub{sessionCookie: "session=fresh"}
		store := kv.NewMemoryStore()
		router := newRouter(t, stub.start(t).URL, store)

		for i := 0; i < 2; i++ {
			response := httptest.NewRecorder()
			router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/posts",
				`{"username":"alice","title":"hi","content":"hello"}`))
			assertStatus(t, response.Code, http.StatusOK)
		}

		if len(stub.registered) != 1 {
			t.Errorf("got %d auth registrations, want 1", len(stub.registered))
		}
	})

	t.Run("missing username yields 400 and no write", func(t *testing.T) {
		stub := &authStub{}
		store := kv.NewMemoryStore()
		router := newRouter(t, stub.start(t).URL, store)

		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/posts",
			`{"title":"hi","content":"hello"}`))

		assertStatus(t, response.Code, http.StatusBadRequest)
		assertNamespaceEmpty(t, store, feed.Namespace)
	})

	t.Run("matching cookie verification succeeds", func(t *testing.T) {
		stub := &authStub{verifyIdentity: "alice"}
		store := kv.NewMemoryStore()
		seedUser(t, store, "alice")
		router := newRouter(t, stub.start(t).URL, store)

		request := newJSONRequest(http.MethodPost, "/posts",
			`{"username":"alice","title":"hi","content":"hello"}`)
		request.Header.Set("Cookie", "session=abc")
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		assertStatus(t, response.Code, http.StatusOK)
		if stub.verifyCalls != 1 {
			t.Errorf("got %d verify calls, want 1", stub.verifyCalls)
		}
	})

	t.Run("mismatched identity yields 401 and no write", func(t *testing.T) {
		stub := &authStub{verifyIdentity: "mallory"}
		store := kv.NewMemoryStore()
		seedUser(t, store, "alice")
		router := newRouter(t, stub.start(t).URL, store)

		request := newJSONRequest(http.MethodPost, "/posts",
			`{"username":"alice","title":"hi","content":"hello"}`)
		request.Header.Set("Cookie", "session=abc")
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		assertStatus(t, response.Code, http.StatusUnauthorized)
		assertNamespaceEmpty(t, store, feed.Namespace)
	})

	t.Run("known user without a cookie proceeds unverified", func(t *testing.T) {
		stub := &authStub{verifyIdentity: "mallory"}
		store := kv.NewMemoryStore()
		seedUser(t, store, "alice")
		router := newRouter(t, stub.start(t).URL, store)

		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/posts",
			`{"username":"alice","title":"hi","content":"hello"}`))

		assertStatus(t, response.Code, http.StatusOK)
		if stub.verifyCalls != 0 {
			t.Errorf("got %d verify calls, want none without a cookie", stub.verifyCalls)
		}
	})
}

func TestListPosts(t *testing.T) {
	t.Run("returns all stored posts as a JSON array", func(t *testing.T) {
		stub := &authStub{sessionCookie: "session=fresh"}
		store := kv.NewMemoryStore()
		router := newRouter(t, stub.start(t).URL, store)

		for _, u := range []string{"alice", "bob"} {
			response := httptest.NewRecorder()
			router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/posts",
				`{"username":"`+u+`","title":"t","content":"c"}`))
			assertStatus(t, response.Code, http.StatusOK)
		}

		response := httptest.NewRecorder()
		router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/posts", nil))

		assertStatus(t, response.Code, http.StatusOK)
		var posts []models.Post
		decodeBody(t, response, &posts)
		if len(posts) != 2 {
			t.Errorf("got %d posts, want 2", len(posts))
		}
	})
}

func TestUpdateLikes(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrites the stored post under the same key", func(t *testing.T) {
		stub := &authStub{}
		store := kv.NewMemoryStore()
		key := feed.PostKey("alice", "2024-01-01T00:00:00Z")
		mustPut(t, store, feed.Namespace, key,
			`{"title":"hi","username":"alice","content":"hello","time":"2024-01-01T00:00:00Z","likes":2}`)
		router := newRouter(t, stub.start(t).URL, store)

		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/updatelikes",
			`{"title":"hi","username":"alice","content":"hello","time":"2024-01-01T00:00:00Z","likes":3}`))

		assertStatus(t, response.Code, http.StatusOK)
		val, err := store.Get(ctx, feed.Namespace, key)
		if err != nil {
			t.Fatalf("post vanished from its key: %v", err)
		}
		var got models.Post
		if err := json.Unmarshal([]byte(val), &got); err != nil {
			t.Fatalf("stored value is not a post: %v", err)
		}
		if got.Likes != 3 {
			t.Errorf("got %d likes, want 3", got.Likes)
		}
		keys, err := store.ListKeys(ctx, feed.Namespace)
		if err != nil {
			t.Fatalf("ListKeys failed: %v", err)
		}
		if len(keys) != 1 {
			t.Errorf("got %d keys, want 1 (no duplicate)", len(keys))
		}
	})

	t.Run("username with the key separator yields 400 and no write", func(t *testing.T) {
		stub := &authStub{}
		store := kv.NewMemoryStore()
		router := newRouter(t, stub.start(t).URL, store)

		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/updatelikes",
			`{"username":"a|2024-01-01T00:00:00Z","time":"2024-01-01T00:00:00Z","likes":3}`))

		assertStatus(t, response.Code, http.StatusBadRequest)
		assertNamespaceEmpty(t, store, feed.Namespace)
	})

	t.Run("missing time yields 400", func(t *testing.T) {
		stub := &authStub{}
		router := newRouter(t, stub.start(t).URL, kv.NewMemoryStore())

		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/updatelikes",
			`{"username":"alice","likes":3}`))

		assertStatus(t, response.Code, http.StatusBadRequest)
	})
}

func TestUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("GET lists registered usernames", func(t *testing.T) {
		stub := &authStub{}
		store := kv.NewMemoryStore()
		seedUser(t, store, "alice")
		seedUser(t, store, "bob")
		router := newRouter(t, stub.start(t).URL, store)

		response := httptest.NewRecorder()
		router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/users", nil))

		assertStatus(t, response.Code, http.StatusOK)
		var users []string
		decodeBody(t, response, &users)
		if len(users) != 2 {
			t.Errorf("got %d users, want 2", len(users))
		}
	})

	t.Run("POST registers unconditionally and echoes the body", func(t *testing.T) {
		stub := &authStub{}
		store := kv.NewMemoryStore()
		router := newRouter(t, stub.start(t).URL, store)

		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/users",
			`{"username":"alice","registeredAt":"2024-01-01T00:00:00Z"}`))

		assertStatus(t, response.Code, http.StatusOK)
		var user models.User
		decodeBody(t, response, &user)
		if user.Username != "alice" || user.RegisteredAt != "2024-01-01T00:00:00Z" {
			t.Errorf("body not echoed, got %+v", user)
		}
		if _, err := store.Get(ctx, identity.Namespace, "alice"); err != nil {
			t.Errorf("registry did not gain alice: %v", err)
		}
	})
}

// failingStore answers every operation with the store-unavailable condition,
// as if the backing store were unreachable.
type failingStore struct{}

func (failingStore) Get(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: connection refused", kv.ErrUnavailable)
}

func (failingStore) Put(context.Context, string, string, string) error {
	return fmt.Errorf("%w: connection refused", kv.ErrUnavailable)
}

func (failingStore) Delete(context.Context, string, string) error {
	return fmt.Errorf("%w: connection refused", kv.ErrUnavailable)
}

func (failingStore) ListKeys(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("%w: connection refused", kv.ErrUnavailable)
}

func TestStoreUnavailable(t *testing.T) {
	stub := &authStub{sessionCookie: "session=fresh"}
	router := newRouter(t, stub.start(t).URL, failingStore{})

	t.Run("listing posts answers 502", func(t *testing.T) {
		response := httptest.NewRecorder()
		router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/posts", nil))

		assertStatus(t, response.Code, http.StatusBadGateway)
	})

	t.Run("creating a post answers 502", func(t *testing.T) {
		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/posts",
			`{"username":"alice","title":"hi","content":"hello"}`))

		assertStatus(t, response.Code, http.StatusBadGateway)
		if len(stub.registered) != 0 {
			t.Errorf("store failure still reached the auth server: %v", stub.registered)
		}
	})

	t.Run("updating likes answers 502", func(t *testing.T) {
		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/updatelikes",
			`{"username":"alice","time":"2024-01-01T00:00:00Z","likes":3}`))

		assertStatus(t, response.Code, http.StatusBadGateway)
	})

	t.Run("listing users answers 502", func(t *testing.T) {
		response := httptest.NewRecorder()
		router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/users", nil))

		assertStatus(t, response.Code, http.StatusBadGateway)
	})

	t.Run("registering a user answers 502", func(t *testing.T) {
		response := httptest.NewRecorder()
		router.ServeHTTP(response, newJSONRequest(http.MethodPost, "/users",
			`{"username":"alice"}`))

		assertStatus(t, response.Code, http.StatusBadGateway)
	})
}

func TestCORSPreflight(t *testing.T) {
	stub := &authStub{}
	router := newRouter(t, stub.start(t).URL, kv.NewMemoryStore())

	request := httptest.NewRequest(http.MethodOptions, "/posts", nil)
	request.Header.Set("Origin", frontend)
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	response := httptest.NewRecorder()
	router.ServeHTTP(response, request)

	assertStatus(t, response.Code, http.StatusNoContent)
	if got := response.Header().Get("Access-Control-Allow-Origin"); got != frontend {
		t.Errorf("got Access-Control-Allow-Origin %q, want %q", got, frontend)
	}
	if got := response.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("got Access-Control-Allow-Credentials %q, want true", got)
	}
}

func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t testing.TB, response *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(response.Body.Bytes(), v); err != nil {
		t.Fatalf("response body %q is not the expected JSON: %v", response.Body.String(), err)
	}
}

func assertStatus(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct status, got %d but want %d", got, want)
	}
}

func assertNamespaceEmpty(t testing.TB, store kv.Store, namespace string) {
	t.Helper()
	keys, err := store.ListKeys(context.Background(), namespace)
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("namespace %s has keys %v, want none", namespace, keys)
	}
}

func seedUser(t testing.TB, store kv.Store, username string) {
	t.Helper()
	mustPut(t, store, identity.Namespace, username, "2024-01-01T00:00:00Z")
}

func mustPut(t testing.TB, store kv.Store, namespace, key, value string) {
	t.Helper()
	if err := store.Put(context.Background(), namespace, key, value); err != nil {
		t.Fatalf("seeding %s/%s failed: %v", namespace, key, err)
	}
}
