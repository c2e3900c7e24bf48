package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BenjaminSRussell/urlmon/internal/config"
	customhttp "github.com/BenjaminSRussell/urlmon/internal/http"
	"github.com/BenjaminSRussell/urlmon/internal/types"
)

func newTestMonitor(t *testing.T, mutate func(*types.Config)) (*Monitor, *bytes.Buffer) {
	t.Helper()

	cfg := config.Default()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ExchangeTimeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	var out bytes.Buffer
	m, err := New(cfg, &out, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, &out
}

// closedAddr returns an address nothing listens on
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// rawServer answers every connection with response and closes it
func rawServer(t *testing.T, response string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 1024)
				var head strings.Builder
				for !strings.HasSuffix(head.String(), "\r\n\r\n") {
					n, err := conn.Read(buf)
					head.Write(buf[:n])
					if err != nil {
						return
					}
				}
				conn.Write([]byte(response))
			}(conn)
		}
	}()

	return "http://" + ln.Addr().String()
}

func TestNewMonitorRejectsUnknownProfile(t *testing.T) {
	cfg := config.Default()
	cfg.TLSProfile = "netscape"

	if _, err := New(cfg, &bytes.Buffer{}, zerolog.Nop()); err == nil {
		t.Error("Expected error for unknown TLS profile")
	}
}

func TestProcessUnknownProtocol(t *testing.T) {
	m, out := newTestMonitor(t, nil)

	visits := m.Process(context.Background(), "ftp://example.com/file")

	if len(visits) != 1 {
		t.Fatalf("Expected 1 visit, got %d", len(visits))
	}
	if visits[0].Kind != types.KindUnknownProtocol {
		t.Errorf("Expected unknown protocol, got %s", visits[0].Kind)
	}

	want := "URL: ftp://example.com/file\nStatus: Unknown Protocol\n\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestProcessNetworkError(t *testing.T) {
	m, out := newTestMonitor(t, nil)
	url := "http://" + closedAddr(t) + "/"

	visits := m.Process(context.Background(), url)

	if visits[0].Kind != types.KindNetwork {
		t.Errorf("Expected network error, got %s", visits[0].Kind)
	}
	want := "URL: " + url + "\nStatus: Network Error\n\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestProcessNetworkErrorLogsHostStreak(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	var logs bytes.Buffer
	m.log = zerolog.New(&logs)
	url := "http://" + closedAddr(t) + "/"

	m.Process(context.Background(), url)
	m.Process(context.Background(), url)

	if !strings.Contains(logs.String(), `"host_failures":1`) {
		t.Errorf("Expected first failure streak in log, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), `"host_failures":2`) {
		t.Errorf("Expected second failure streak in log, got %q", logs.String())
	}
}

func TestProcessRedirectIsFollowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>moved here</p>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, out := newTestMonitor(t, nil)
	visits := m.Process(context.Background(), srv.URL+"/old")

	if len(visits) != 2 {
		t.Fatalf("Expected 2 visits, got %d", len(visits))
	}
	if visits[1].Hop != 1 || visits[1].ParentURL != srv.URL+"/old" {
		t.Errorf("Expected follow-up at hop 1, got hop %d parent %q", visits[1].Hop, visits[1].ParentURL)
	}

	want := "URL: " + srv.URL + "/old\n" +
		"Status: 302 Found\n" +
		"Redirected URL: " + srv.URL + "/new\n" +
		"\n" +
		"URL: " + srv.URL + "/new\n" +
		"Status: 200 OK\n" +
		"\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestProcessFollowsFirstImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><img src="/a.png"><img alt="b" src="/b.png"></html>`)
	})
	mux.HandleFunc("/a.png", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not really a png")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, out := newTestMonitor(t, nil)
	visits := m.Process(context.Background(), srv.URL+"/")

	if len(visits) != 2 {
		t.Fatalf("Expected 2 visits, got %d", len(visits))
	}
	if got := strings.Count(out.String(), "Referenced URL: "); got != 1 {
		t.Errorf("Expected 1 referenced line, got %d", got)
	}
	if !strings.Contains(out.String(), "Referenced URL: "+srv.URL+"/a.png\n") {
		t.Errorf("Expected first image to be referenced, got %q", out.String())
	}
	if visits[1].URL != srv.URL+"/a.png" || visits[1].StatusCode != 200 {
		t.Errorf("Expected image visit with 200, got %+v", visits[1])
	}
}

func TestProcessFollowAllImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page" {
			fmt.Fprint(w, `<img src="/a.png"><img src="/b.png"><img src="/a.png">`)
			return
		}
		fmt.Fprint(w, "image bytes")
	}))
	defer srv.Close()

	m, out := newTestMonitor(t, func(c *types.Config) { c.FollowMode = types.FollowAll })
	visits := m.Process(context.Background(), srv.URL+"/page")

	// page, a.png, b.png; the repeated a.png is refused as a loop
	if len(visits) != 3 {
		t.Fatalf("Expected 3 visits, got %d", len(visits))
	}
	if got := strings.Count(out.String(), "Referenced URL: "); got != 3 {
		t.Errorf("Expected 3 referenced lines, got %d", got)
	}
	if visits[0].FollowNote != types.ErrFollowLoop.Error() {
		t.Errorf("Expected loop note on page, got %q", visits[0].FollowNote)
	}
}

func TestProcessFollowNone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, out := newTestMonitor(t, func(c *types.Config) { c.FollowMode = types.FollowNone })
	visits := m.Process(context.Background(), srv.URL+"/old")

	if len(visits) != 1 {
		t.Fatalf("Expected 1 visit, got %d", len(visits))
	}
	if !strings.Contains(out.String(), "Redirected URL: "+srv.URL+"/new\n") {
		t.Errorf("Expected redirect to be reported, got %q", out.String())
	}
}

func TestProcessSuccessWithoutImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/x">no pictures</a></body></html>`)
	}))
	defer srv.Close()

	m, out := newTestMonitor(t, nil)
	m.Process(context.Background(), srv.URL+"/")

	want := "URL: " + srv.URL + "/\nStatus: 200 OK\n\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestProcessRedirectLoop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, out := newTestMonitor(t, nil)
	visits := m.Process(context.Background(), srv.URL+"/a")

	if len(visits) != 2 {
		t.Fatalf("Expected 2 visits, got %d", len(visits))
	}

	want := "URL: " + srv.URL + "/b\n" +
		"Status: 302 Found\n" +
		"Redirected URL: " + srv.URL + "/a\n" +
		"Error: follow loop detected\n" +
		"\n"
	if !strings.HasSuffix(out.String(), want) {
		t.Errorf("Expected output to end with %q, got %q", want, out.String())
	}
}

func TestProcessHopLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/hop/"))
		http.Redirect(w, r, "/hop/"+strconv.Itoa(n+1), http.StatusFound)
	}))
	defer srv.Close()

	m, out := newTestMonitor(t, func(c *types.Config) { c.MaxHops = 2 })
	visits := m.Process(context.Background(), srv.URL+"/hop/0")

	if len(visits) != 3 {
		t.Fatalf("Expected 3 visits, got %d", len(visits))
	}
	last := visits[2]
	if last.Hop != 2 {
		t.Errorf("Expected last hop 2, got %d", last.Hop)
	}
	if last.FollowNote != types.ErrFollowLimit.Error() {
		t.Errorf("Expected limit note, got %q", last.FollowNote)
	}
	if !strings.HasSuffix(out.String(), "Error: follow limit reached\n\n") {
		t.Errorf("Expected limit error line, got %q", out.String())
	}
}

func TestProcessVisitLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/hop/"))
		http.Redirect(w, r, "/hop/"+strconv.Itoa(n+1), http.StatusFound)
	}))
	defer srv.Close()

	m, _ := newTestMonitor(t, func(c *types.Config) {
		c.MaxHops = 50
		c.MaxVisits = 4
	})
	visits := m.Process(context.Background(), srv.URL+"/hop/0")

	if len(visits) != 4 {
		t.Fatalf("Expected 4 visits, got %d", len(visits))
	}
}

func TestProcessMissingRedirectLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv.Close()

	m, out := newTestMonitor(t, nil)
	visits := m.Process(context.Background(), srv.URL+"/")

	if visits[0].Kind != types.KindMissingRedirect {
		t.Errorf("Expected missing redirect, got %s", visits[0].Kind)
	}

	want := "URL: " + srv.URL + "/\n" +
		"Status: 301 Moved Permanently\n" +
		"Error: missing redirect location\n" +
		"\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestProcessMalformedResponse(t *testing.T) {
	url := rawServer(t, "garbage\r\n\r\n")

	m, out := newTestMonitor(t, nil)
	visits := m.Process(context.Background(), url+"/")

	if visits[0].Kind != types.KindParse {
		t.Errorf("Expected parse error, got %s", visits[0].Kind)
	}
	if !strings.Contains(out.String(), "Status: Malformed Response\n") {
		t.Errorf("Expected malformed response status, got %q", out.String())
	}
}

func TestProcessEmptyResponse(t *testing.T) {
	url := rawServer(t, "")

	m, out := newTestMonitor(t, nil)
	visits := m.Process(context.Background(), url+"/")

	if visits[0].Kind != types.KindExchange {
		t.Errorf("Expected exchange error, got %s", visits[0].Kind)
	}
	if !strings.Contains(out.String(), "Status: No Response\n") {
		t.Errorf("Expected no response status, got %q", out.String())
	}
}

// closeWatchServer answers one connection with response, half-closes it
// and reports how its read of the client side ended
func closeWatchServer(t *testing.T, response []byte) (string, <-chan error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()

		buf := make([]byte, 1024)
		var head strings.Builder
		for !strings.HasSuffix(head.String(), "\r\n\r\n") {
			n, err := conn.Read(buf)
			head.Write(buf[:n])
			if err != nil {
				done <- err
				return
			}
		}

		conn.Write(response)
		conn.(*net.TCPConn).CloseWrite()

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, err = io.Copy(io.Discard, conn)
		done <- err
	}()

	return "http://" + ln.Addr().String(), done
}

func TestProcessClosesTransportOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
		kind     types.Kind
	}{
		{"invalid utf-8", []byte("HTTP/1.0 200 OK\r\n\r\n\xff\xfe\xfd"), types.KindExchange},
		{"oversized body", []byte("HTTP/1.0 200 OK\r\n\r\n" + strings.Repeat("a", 64<<10)), types.KindExchange},
		{"malformed status", []byte("garbage\r\n\r\n"), types.KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, done := closeWatchServer(t, tt.response)
			m, _ := newTestMonitor(t, func(c *types.Config) { c.MaxBodyBytes = 1024 })

			visits := m.Process(context.Background(), url+"/")
			if visits[0].Kind != tt.kind {
				t.Errorf("Expected %s, got %s", tt.kind, visits[0].Kind)
			}

			select {
			case err := <-done:
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					t.Errorf("Expected client to close the connection, server read timed out")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Expected server to see the connection close")
			}
		})
	}
}

func TestProcessRespectsRobots(t *testing.T) {
	var robotsFetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		robotsFetches.Add(1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, out := newTestMonitor(t, func(c *types.Config) { c.RespectRobots = true })

	blocked := m.Process(context.Background(), srv.URL+"/private/page")
	allowed := m.Process(context.Background(), srv.URL+"/public")

	if blocked[0].Kind != types.KindBlockedByRobots {
		t.Errorf("Expected blocked by robots, got %s", blocked[0].Kind)
	}
	if allowed[0].Kind != types.KindOK || allowed[0].StatusCode != 200 {
		t.Errorf("Expected allowed visit with 200, got %+v", allowed[0])
	}
	if got := robotsFetches.Load(); got != 1 {
		t.Errorf("Expected robots.txt to be fetched once, got %d", got)
	}
	if !strings.Contains(out.String(), "Status: Blocked By Robots\n") {
		t.Errorf("Expected blocked status line, got %q", out.String())
	}
}

func TestProcessRobotsUnavailableAllows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	m, _ := newTestMonitor(t, func(c *types.Config) { c.RespectRobots = true })
	visits := m.Process(context.Background(), srv.URL+"/anything")

	if visits[0].Kind != types.KindOK {
		t.Errorf("Expected ok, got %s", visits[0].Kind)
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	m, out := newTestMonitor(t, nil)
	m.connector = nil

	visits := m.Process(context.Background(), "http://"+closedAddr(t)+"/")

	if visits[0].Kind != types.KindInternal {
		t.Errorf("Expected internal error, got %s", visits[0].Kind)
	}
	if m.PanicCount() != 1 {
		t.Errorf("Expected 1 recovered panic, got %d", m.PanicCount())
	}
	if !strings.Contains(out.String(), "Status: Internal Error\n") {
		t.Errorf("Expected internal error status, got %q", out.String())
	}
}

func TestProcessRetriesNetworkErrors(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	m.retry = customhttp.NewRetryHandler(customhttp.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2,
	})

	visits := m.Process(context.Background(), "http://"+closedAddr(t)+"/")

	if visits[0].Kind != types.KindNetwork {
		t.Errorf("Expected network error, got %s", visits[0].Kind)
	}
	if !strings.Contains(visits[0].Error, "failed after 3 attempts") {
		t.Errorf("Expected retry count in error, got %q", visits[0].Error)
	}
}

type memoryRecorder struct {
	visits []types.Visit
}

func (r *memoryRecorder) SaveVisit(v types.Visit) error {
	r.visits = append(r.visits, v)
	return nil
}

func (r *memoryRecorder) Close() error { return nil }

func TestRunBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>fine</p>")
	}))
	defer srv.Close()

	unreachable := "http://" + closedAddr(t) + "/"
	input := strings.Join([]string{
		"  " + unreachable + "  ",
		"",
		"ftp://example.com/",
		srv.URL + "/",
	}, "\n")

	cfg := config.Default()
	cfg.ConnectTimeout = 2 * time.Second
	rec := &memoryRecorder{}
	var out bytes.Buffer

	m, err := New(cfg, &out, zerolog.Nop(), rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results, err := m.RunBatch(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}

	if results.URLs != 4 || results.Visits != 4 || results.Errors != 3 {
		t.Errorf("Expected 4 urls, 4 visits, 3 errors, got %+v", results)
	}
	if len(rec.visits) != 4 {
		t.Errorf("Expected 4 recorded visits, got %d", len(rec.visits))
	}

	want := "URL: " + unreachable + "\nStatus: Network Error\n\n" +
		"URL: \nStatus: Unknown Protocol\n\n" +
		"URL: ftp://example.com/\nStatus: Unknown Protocol\n\n" +
		"URL: " + srv.URL + "/\nStatus: 200 OK\n\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestRunBatchCancelled(t *testing.T) {
	m, out := newTestMonitor(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.RunBatch(ctx, strings.NewReader("ftp://a/\nftp://b/\n"))
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no output, got %q", out.String())
	}
}
