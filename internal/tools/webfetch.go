package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"

	"github.com/xonecas/agentturn/internal/core"
)

const (
	defaultWebFetchMaxChars = 10000
	webFetchBodyLimit       = 1 << 20 // 1MB
)

// WebFetchArgs are the arguments to the WebFetch tool.
type WebFetchArgs struct {
	URL      string `json:"url" jsonschema:"required,description=The URL to fetch"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"description=Maximum characters to return (default 10000)"`
}

// NewWebFetch builds the WebFetch tool: fetch a URL and return readable
// text, grounded on the teacher's mcptools.MakeWebFetchHandler. HTML pages
// are cleaned via go-shiori/go-readability; markdown documents (raw READMEs,
// docs served as text/markdown) are rendered to HTML via goldmark first so
// both paths converge on the same HTML-tag-stripping extractor.
func NewWebFetch() core.Tool {
	schema := generateSchema[WebFetchArgs]()
	client := &http.Client{Timeout: 15 * time.Second}
	return core.Tool{
		Name:        "WebFetch",
		Description: "Fetch a URL and return its content as cleaned text (HTML tags, scripts, and styles stripped; Markdown documents are rendered to text).",
		Parameters:  schema,
		Execute:     executeWebFetch(schema, client),
	}
}

func executeWebFetch(schema json.RawMessage, client *http.Client) core.ToolExecuteFunc {
	return func(ctx context.Context, input json.RawMessage, _ core.ToolContext) (string, error) {
		if err := validateArgs(schema, input); err != nil {
			return "", err
		}
		var args WebFetchArgs
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.URL == "" {
			return "", fmt.Errorf("url is required")
		}
		if args.MaxChars <= 0 {
			args.MaxChars = defaultWebFetchMaxChars
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
		if err != nil {
			return "", fmt.Errorf("bad url: %w", err)
		}
		req.Header.Set("User-Agent", "agentloop/0.1")
		req.Header.Set("Accept", "text/html, text/markdown, text/plain;q=0.9, */*;q=0.5")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("fetch failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("http %d: %s", resp.StatusCode, resp.Status)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchBodyLimit))
		if err != nil {
			return "", fmt.Errorf("read failed: %w", err)
		}

		contentType := resp.Header.Get("Content-Type")
		text := extractContent(body, args.URL, contentType)
		return truncateTail(text, args.MaxChars), nil
	}
}

// extractContent converts a fetched body into plain text by content type:
// HTML goes through readability, markdown is rendered to HTML via goldmark
// and then stripped the same way, everything else passes through as-is.
func extractContent(body []byte, rawURL, contentType string) string {
	switch {
	case strings.Contains(contentType, "html"):
		if parsed, err := url.Parse(rawURL); err == nil {
			if article, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil && strings.TrimSpace(article.TextContent) != "" {
				return strings.TrimSpace(article.TextContent)
			}
		}
		return stripHTML(body)
	case strings.Contains(contentType, "markdown") || strings.HasSuffix(rawURL, ".md"):
		var buf bytes.Buffer
		if err := goldmark.Convert(body, &buf); err == nil {
			return stripHTML(buf.Bytes())
		}
		return string(body)
	default:
		return string(body)
	}
}

// stripHTML parses HTML and returns visible text content, stripping
// script/style/noscript elements, grounded on the teacher's
// mcptools.extractText.
func stripHTML(data []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skip := 0

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return collapseWhitespace(b.String())
		}
		tn, _ := tokenizer.TagName()
		tag := string(tn)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if isSkipTag(tag) {
				skip++
			}
			if isBlockElement(tag) && b.Len() > 0 {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			if isSkipTag(tag) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func isSkipTag(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "td", "th", "blockquote", "pre", "hr",
		"header", "footer", "section", "article", "nav", "main":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			if blanks <= 1 {
				out = append(out, "")
			}
			continue
		}
		blanks = 0
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
