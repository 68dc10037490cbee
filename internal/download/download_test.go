package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"episodic/internal/services"
)

var mp3Payload = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)

type clipServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newClipServer(t *testing.T) *clipServer {
	t.Helper()
	cs := &clipServer{hits: map[string]int{}}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits[r.URL.Path]++
		cs.mu.Unlock()
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(mp3Payload)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *clipServer) count(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits[path]
}

func TestIntroOutroDownloadsBoth(t *testing.T) {
	srv := newClipServer(t)
	ref := filepath.Join(t.TempDir(), "episode.wav")
	fetcher := NewHTTPFetcher(5*time.Second, "episodic/test")

	res, err := IntroOutro(context.Background(), fetcher, Request{
		IntroURL: srv.URL + "/intro.mp3",
		OutroURL: srv.URL + "/outro.mp3",
		RefPath:  ref,
	}, nil)
	if err != nil {
		t.Fatalf("IntroOutro: %v", err)
	}
	dir := filepath.Dir(ref)
	if res.IntroPath != filepath.Join(dir, "episode_intro.mp3") || res.OutroPath != filepath.Join(dir, "episode_outro.mp3") {
		t.Fatalf("paths = %+v", res)
	}
	if res.Shared {
		t.Fatal("distinct URLs must not be shared")
	}
	data, err := os.ReadFile(res.IntroPath)
	if err != nil || len(data) != len(mp3Payload) {
		t.Fatalf("intro contents = %d bytes, %v", len(data), err)
	}
}

func TestIntroOutroSameURLFetchedOnce(t *testing.T) {
	srv := newClipServer(t)
	ref := filepath.Join(t.TempDir(), "episode.wav")

	res, err := IntroOutro(context.Background(), NewHTTPFetcher(5*time.Second, ""), Request{
		IntroURL: srv.URL + "/jingle.mp3",
		OutroURL: srv.URL + "/jingle.mp3",
		RefPath:  ref,
	}, nil)
	if err != nil {
		t.Fatalf("IntroOutro: %v", err)
	}
	if !res.Shared || res.IntroPath != res.OutroPath {
		t.Fatalf("expected shared result, got %+v", res)
	}
	if got := srv.count("/jingle.mp3"); got != 1 {
		t.Fatalf("jingle fetched %d times", got)
	}
}

func TestIntroOutroSingleRole(t *testing.T) {
	srv := newClipServer(t)
	ref := filepath.Join(t.TempDir(), "episode.wav")
	res, err := IntroOutro(context.Background(), NewHTTPFetcher(5*time.Second, ""), Request{
		OutroURL: srv.URL + "/outro.mp3",
		RefPath:  ref,
	}, nil)
	if err != nil {
		t.Fatalf("IntroOutro: %v", err)
	}
	if res.IntroPath != "" || !strings.HasSuffix(res.OutroPath, "episode_outro.mp3") {
		t.Fatalf("result = %+v", res)
	}

	empty, err := IntroOutro(context.Background(), NewHTTPFetcher(time.Second, ""), Request{RefPath: ref}, nil)
	if err != nil || empty != (Result{}) {
		t.Fatalf("empty request = %+v, %v", empty, err)
	}
}

func TestIntroOutroFailureRemovesCompletedDownloads(t *testing.T) {
	srv := newClipServer(t)
	ref := filepath.Join(t.TempDir(), "episode.wav")

	_, err := IntroOutro(context.Background(), NewHTTPFetcher(5*time.Second, ""), Request{
		IntroURL: srv.URL + "/intro.mp3",
		OutroURL: srv.URL + "/missing.mp3",
		RefPath:  ref,
	}, nil)
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, srv.URL+"/intro.mp3") || !strings.Contains(msg, srv.URL+"/missing.mp3") {
		t.Fatalf("error should list requested URLs: %q", msg)
	}
	if !strings.Contains(msg, "404") {
		t.Fatalf("error should carry the cause: %q", msg)
	}
	if _, statErr := os.Stat(SavePath(ref, "intro", "mp3")); !os.IsNotExist(statErr) {
		t.Fatal("completed intro should be removed after a failed outro")
	}
}

func TestIntroOutroRequiresRefPath(t *testing.T) {
	_, err := IntroOutro(context.Background(), NewHTTPFetcher(time.Second, ""), Request{IntroURL: "http://x/intro.mp3"}, nil)
	if !errors.Is(err, services.ErrMissingInput) {
		t.Fatalf("expected missing input, got %v", err)
	}
}

func TestMirrorRewrite(t *testing.T) {
	m := Mirror{Host: "app.example.com", Base: "http://mirror.example.net/bucket/clips/"}
	tests := map[string]string{
		"https://app.example.com/files/jingle.mp3?x=1": "http://mirror.example.net/bucket/clips/jingle.mp3",
		"https://other.example.com/jingle.mp3":         "https://other.example.com/jingle.mp3",
	}
	for in, want := range tests {
		if got := m.Rewrite(in); got != want {
			t.Errorf("Rewrite(%q) = %q, want %q", in, got, want)
		}
	}
	if got := (Mirror{}).Rewrite("https://app.example.com/a.mp3"); got != "https://app.example.com/a.mp3" {
		t.Fatalf("zero mirror rewrote %q", got)
	}
}

func TestMirrorAppliedToFetch(t *testing.T) {
	srv := newClipServer(t)
	ref := filepath.Join(t.TempDir(), "episode.wav")
	_, err := IntroOutro(context.Background(), NewHTTPFetcher(5*time.Second, ""), Request{
		IntroURL: "https://app.example.com/uploads/intro.mp3",
		RefPath:  ref,
		Mirror:   Mirror{Host: "app.example.com", Base: srv.URL + "/mirror"},
	}, nil)
	if err != nil {
		t.Fatalf("IntroOutro: %v", err)
	}
	if got := srv.count("/mirror/intro.mp3"); got != 1 {
		t.Fatalf("mirror hits = %d", got)
	}
}

func TestExtension(t *testing.T) {
	if got := Extension(mp3Payload, "http://x/file"); got != "mp3" {
		t.Fatalf("sniffed = %q", got)
	}
	if got := Extension([]byte{0x00, 0x01, 0x02}, "http://x/clip.M4A"); got != "m4a" {
		t.Fatalf("url fallback = %q", got)
	}
	if got := Extension([]byte{0x00, 0x01}, "http://x/clip"); got != "bin" {
		t.Fatalf("default = %q", got)
	}
}
