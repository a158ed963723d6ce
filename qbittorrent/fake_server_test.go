package qbittorrent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeQBittorrent implements the WebAPI v2 subset the client talks to.
type fakeQBittorrent struct {
	mu sync.Mutex

	username string
	password string

	sid          string
	logins       int
	loginStatus  int
	forbidAlways bool
	expireNext   int

	torrents     []map[string]any
	infoStatus   int
	infoBody     string
	deleteStatus int
	deleted      []deleteCall
}

type deleteCall struct {
	Hashes      string
	DeleteFiles string
}

func newFakeQBittorrent(t *testing.T) (*fakeQBittorrent, *httptest.Server) {
	t.Helper()

	f := &fakeQBittorrent{
		username:     "admin",
		password:     "secret",
		deleteStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", f.handleLogin)
	mux.HandleFunc("/api/v2/torrents/info", f.handleInfo)
	mux.HandleFunc("/api/v2/torrents/delete", f.handleDelete)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQBittorrent) handleLogin(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logins++
	if f.loginStatus != 0 {
		http.Error(w, "banned", f.loginStatus)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") != f.username || r.PostForm.Get("password") != f.password {
		fmt.Fprint(w, "Fails.")
		return
	}

	f.sid = fmt.Sprintf("sid-%d", f.logins)
	http.SetCookie(w, &http.Cookie{Name: "SID", Value: f.sid, Path: "/"})
	fmt.Fprint(w, "Ok.")
}

// authorized must be called with f.mu held.
func (f *fakeQBittorrent) authorized(r *http.Request) bool {
	if f.forbidAlways {
		return false
	}
	if f.expireNext > 0 {
		f.expireNext--
		f.sid = ""
		return false
	}
	c, err := r.Cookie("SID")
	return err == nil && f.sid != "" && c.Value == f.sid
}

func (f *fakeQBittorrent) handleInfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if f.infoStatus != 0 {
		http.Error(w, "boom", f.infoStatus)
		return
	}
	if f.infoBody != "" {
		fmt.Fprint(w, f.infoBody)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	torrents := f.torrents
	if torrents == nil {
		torrents = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(torrents)
}

func (f *fakeQBittorrent) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.deleted = append(f.deleted, deleteCall{
		Hashes:      r.PostForm.Get("hashes"),
		DeleteFiles: r.PostForm.Get("deleteFiles"),
	})
	if f.deleteStatus != http.StatusOK {
		http.Error(w, "cannot delete", f.deleteStatus)
	}
}

// invalidate drops the current session so the next request is rejected.
func (f *fakeQBittorrent) invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sid = "expired"
}

func (f *fakeQBittorrent) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}
