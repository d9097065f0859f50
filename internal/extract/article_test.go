package extract

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleNewsletter = `<!DOCTYPE html>
<html><head><style>.content-title{color:red}</style><script>var x = "news-rsf-news-body";</script></head>
<body>
  <h2 class="content-title">  Storm hits coast </h2>
  <div class="news-rsf-news-body"><p>Heavy rain <b>flooded</b> roads.</p></div>
  <h2 class="headline content-title">Markets rally</h2>
  <div class="news-rsf-news-body wide"> Stocks rose 2%. </div>
  <div class="unrelated">Ignore me</div>
</body></html>`

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Article
	}{
		{
			name: "newsletter with two stories",
			html: sampleNewsletter,
			want: Article{
				Title:   "Storm hits coast  Markets rally",
				Content: "Heavy rain flooded roads.  Stocks rose 2%.",
			},
		},
		{
			name: "no matching elements",
			html: `<html><body><p class="title">Hello</p><div class="news-body">World</div></body></html>`,
			want: Article{},
		},
		{
			name: "empty input",
			html: "",
			want: Article{},
		},
		{
			name: "plain text is not html with classes",
			html: "just some text",
			want: Article{},
		},
		{
			name: "class must match a whole token",
			html: `<div class="news-rsf-news-body-extra">no</div><div class="xcontent-title">no</div>`,
			want: Article{},
		},
		{
			name: "nested matches are both included",
			html: `<div class="news-rsf-news-body">outer <span class="news-rsf-news-body">inner</span></div>`,
			want: Article{Content: "outer inner inner"},
		},
		{
			name: "content without title",
			html: `<div class="news-rsf-news-body">Body only</div>`,
			want: Article{Content: "Body only"},
		},
		{
			name: "block elements inside paragraphs keep source nesting",
			html: `<p class="news-rsf-news-body"><div>Body text</div></p><p class="content-title"><div>Title</div></p>`,
			want: Article{Title: "Title", Content: "Body text"},
		},
		{
			name: "stray end tag is ignored",
			html: `<div class="news-rsf-news-body">a</span>b</div>c`,
			want: Article{Content: "ab"},
		},
		{
			name: "unclosed element runs to the end",
			html: `<div class="news-rsf-news-body">a<p>b`,
			want: Article{Content: "ab"},
		},
		{
			name: "end tag closes elements opened inside it",
			html: `<div class="content-title"><b>bold</div>after`,
			want: Article{Title: "bold"},
		},
		{
			name: "void and self-closing elements hold no text",
			html: `<img class="content-title"><div class="news-rsf-news-body">x<br>y</div>`,
			want: Article{Content: "xy"},
		},
		{
			name: "entities are unescaped",
			html: `<div class="news-rsf-news-body">fish &amp; chips</div>`,
			want: Article{Content: "fish & chips"},
		},
		{
			name: "comments are not text",
			html: `<div class="news-rsf-news-body">a<!-- hidden -->b</div>`,
			want: Article{Content: "ab"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.html))
		})
	}
}

func TestExtract_ContentIsSpaceJoinedInDocumentOrder(t *testing.T) {
	html := `<p class="news-rsf-news-body"> first </p><p>skip</p><p class="news-rsf-news-body">second</p><p class="news-rsf-news-body">third </p>`

	got := Extract(html).Content
	want := strings.TrimSpace(strings.Join([]string{" first ", "second", "third "}, " "))
	assert.Equal(t, want, got)
}

func TestFormatEmails(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	bodies := []string{
		`<h1 class="content-title">A</h1><div class="news-rsf-news-body">alpha</div>`,
		`<h1 class="content-title">B</h1>`,
		`<h1 class="content-title">C</h1><div class="news-rsf-news-body">   </div>`,
		`<div class="news-rsf-news-body">delta</div>`,
		"plain text newsletter",
	}

	got := FormatEmailsWithLogger(logger, bodies)

	assert.Equal(t, []Article{
		{Title: "A", Content: "alpha"},
		{Title: "", Content: "delta"},
	}, got)
	for _, a := range got {
		assert.NotEmpty(t, a.Content)
	}
	assert.Contains(t, buf.String(), "total 2 news articles have been retrieved")
}

func TestFormatEmails_Empty(t *testing.T) {
	got := FormatEmails(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTitles(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Titles([]Article{{Title: "A"}, {Title: "B"}}))
	assert.Empty(t, Titles(nil))
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hi</p>", "Hi"},
		{"<html><head><title>T</title></head><body><p>Hello <b>world</b></p></body></html>", "THello world"},
		{"<style>p{}</style><p>x</p><script>alert(1)</script>", "x"},
		{"no tags", "no tags"},
		{"", ""},
		{"<p>fish &amp; chips</p>", "fish & chips"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripTags(tt.in), "StripTags(%q)", tt.in)
	}
}
