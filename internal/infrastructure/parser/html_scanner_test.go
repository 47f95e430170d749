package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"AutoPublisher/internal/scanner"
)

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	u, err := buildPageURL("https://news.example.com/list?section=it", 3)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	q := parsed.Query()
	if q.Get("page") != "3" {
		t.Fatalf("expected page=3, got %s", q.Get("page"))
	}
	if q.Get("section") != "it" {
		t.Fatalf("existing query lost: %s", parsed.RawQuery)
	}
}

func TestExtractHeadlines(t *testing.T) {
	t.Parallel()

	html := `
	<main>
	  <h2><a href="/1">  Go 1.24 릴리스
	     정리 </a></h2>
	  <h3><a href="/2"></a></h3>
	  <h3><a href="/3">` + strings.Repeat("가", 200) + `</a></h3>
	</main>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	got := extractHeadlines(doc, defaultHeadlineSelector)
	if len(got) != 2 {
		t.Fatalf("expected 2 headlines, got %d: %v", len(got), got)
	}
	if got[0] != "Go 1.24 릴리스 정리" {
		t.Fatalf("whitespace not normalized: %q", got[0])
	}
	if n := len([]rune(got[1])); n != maxTopicRunes {
		t.Fatalf("expected truncation to %d runes, got %d", maxTopicRunes, n)
	}
}

func TestHTMLScannerWalksPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `<ul><li class="t">공통 제목</li><li class="t">제목 %s</li></ul>`, page)
	}))
	defer srv.Close()

	s := NewHTMLScanner(srv.Client())
	got, err := s.Scan(context.Background(), scanner.Request{
		Site:     "unpre",
		Category: "프로그래밍",
		URL:      srv.URL,
		Selector: "li.t",
		Priority: 7,
		Options:  map[string]string{"pages": "2"},
	})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	want := []string{"공통 제목", "제목 1", "제목 2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d topics, got %d", len(want), len(got))
	}
	for i, c := range got {
		if c.Topic != want[i] || c.Site != "unpre" || c.Category != "프로그래밍" || c.Priority != 7 {
			t.Fatalf("unexpected candidate %d: %+v", i, c)
		}
	}
}

func TestHTMLScannerLimitAndErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<h2><a>a</a></h2><h2><a>b</a></h2><h2><a>c</a></h2>`)
	}))
	defer srv.Close()

	s := NewHTMLScanner(srv.Client())
	got, err := s.Scan(context.Background(), scanner.Request{Site: "x", URL: srv.URL, Options: map[string]string{"limit": "2"}})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit 2, got %d", len(got))
	}

	if _, err := s.Scan(context.Background(), scanner.Request{Site: "x", URL: srv.URL + "/missing"}); err == nil {
		t.Fatal("expected error for 404 page")
	}
	if _, err := s.Scan(context.Background(), scanner.Request{Site: "x"}); err == nil {
		t.Fatal("expected error without url")
	}
}

func TestVisibleText(t *testing.T) {
	t.Parallel()

	got := VisibleText("<h1>제목</h1><script>var x = 1;</script><p>본문  <b>강조</b></p><style>p{}</style>")
	if got != "제목본문 강조" {
		t.Fatalf("unexpected text %q", got)
	}
}
