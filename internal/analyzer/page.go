package analyzer

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// maxPageText bounds the visible text kept for phrase matching.
	maxPageText = 64 * 1024

	// methodScript marks the pseudo form collecting inputs outside any <form>.
	methodScript = "SCRIPT"
)

// PageInfo is what a single tokenizer pass over the body found.
// No DOM is built: elements are seen in document order and only the
// properties the online analyzers need are kept.
type PageInfo struct {
	// Title is the text of the first <title> element.
	Title string

	// MetaRefresh is the content attribute of the first
	// <meta http-equiv="refresh">, if any.
	MetaRefresh string

	// MetaCSP holds the content of every <meta http-equiv="Content-Security-Policy">.
	MetaCSP []string

	// Forms holds every form in document order.
	Forms []FormInfo

	// Frames holds every iframe in document order.
	Frames []FrameInfo

	// Text is the visible text, truncated to maxPageText bytes.
	Text string
}

// FormInfo contains information about an HTML form.
type FormInfo struct {
	// Action is the resolved form action URL. An empty action posts to the page itself.
	Action string

	// Method is the HTTP method (GET, POST).
	Method string

	// Fields contains form field names and types.
	Fields []FormField
}

// FormField represents a form input field.
type FormField struct {
	Name string
	Type string
}

// FrameInfo describes an iframe element.
type FrameInfo struct {
	// Src is the resolved src attribute.
	Src string

	// Hidden is true when the frame has zero size, is styled invisible or
	// is pushed off-screen.
	Hidden bool
}

// HasPassword reports whether the form contains a password field.
func (f FormInfo) HasPassword() bool {
	for _, field := range f.Fields {
		if field.Type == "password" {
			return true
		}
	}
	return false
}

// ParsePage tokenizes body and collects title, meta refresh, meta CSP,
// forms and visible text. Relative form actions are resolved against base.
func ParsePage(body []byte, base string) (*PageInfo, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	page := &PageInfo{
		MetaCSP: make([]string, 0),
		Forms:   make([]FormInfo, 0),
		Frames:  make([]FrameInfo, 0),
	}
	var (
		text    strings.Builder
		inTitle bool
		skip    int // depth inside <script>/<style>
		form    *FormInfo
	)

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if form != nil {
				page.Forms = append(page.Forms, *form)
			}
			page.Text = text.String()
			if errors.Is(z.Err(), io.EOF) {
				return page, nil
			}
			return page, z.Err()

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = page.Title == "" && tt == html.StartTagToken
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.Meta:
				collectMeta(page, tok)
			case atom.Iframe:
				page.Frames = append(page.Frames, FrameInfo{
					Src:    resolveAction(baseURL, attr(tok, "src")),
					Hidden: isHiddenFrame(tok),
				})
			case atom.Form:
				if form != nil {
					page.Forms = append(page.Forms, *form)
				}
				form = &FormInfo{
					Action: resolveAction(baseURL, attr(tok, "action")),
					Method: strings.ToUpper(attr(tok, "method")),
					Fields: make([]FormField, 0),
				}
				if form.Method == "" {
					form.Method = "GET"
				}
			case atom.Input, atom.Select, atom.Textarea:
				if form == nil {
					// Inputs outside a form still collect credentials through scripts.
					form = &FormInfo{Method: methodScript, Fields: make([]FormField, 0)}
				}
				form.Fields = append(form.Fields, formField(tok))
			}

		case html.EndTagToken:
			switch z.Token().DataAtom {
			case atom.Title:
				inTitle = false
			case atom.Script, atom.Style:
				if skip > 0 {
					skip--
				}
			case atom.Form:
				if form != nil {
					page.Forms = append(page.Forms, *form)
					form = nil
				}
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			data := strings.TrimSpace(string(z.Text()))
			if data == "" {
				continue
			}
			if inTitle {
				page.Title = data
				continue
			}
			if text.Len() < maxPageText {
				text.WriteString(data)
				text.WriteByte(' ')
			}
		}
	}
}

func collectMeta(page *PageInfo, tok html.Token) {
	equiv := strings.ToLower(strings.TrimSpace(attr(tok, "http-equiv")))
	content := attr(tok, "content")
	switch equiv {
	case "refresh":
		if page.MetaRefresh == "" {
			page.MetaRefresh = content
		}
	case "content-security-policy":
		page.MetaCSP = append(page.MetaCSP, content)
	}
}

// isHiddenFrame reports whether an iframe is invisible to the user.
func isHiddenFrame(tok html.Token) bool {
	for _, key := range []string{"width", "height"} {
		if v := strings.TrimSpace(attr(tok, key)); v == "0" || v == "0px" {
			return true
		}
	}
	style := strings.ToLower(strings.ReplaceAll(attr(tok, "style"), " ", ""))
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		switch prop {
		case "display":
			if val == "none" {
				return true
			}
		case "visibility":
			if val == "hidden" {
				return true
			}
		case "width", "height", "opacity":
			if val == "0" || val == "0px" {
				return true
			}
		case "left", "top":
			if n, err := strconv.Atoi(strings.TrimSuffix(val, "px")); err == nil && n <= -100 {
				return true
			}
		}
	}
	return hasAttr(tok, "hidden")
}

func hasAttr(tok html.Token, key string) bool {
	for _, a := range tok.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func formField(tok html.Token) FormField {
	field := FormField{
		Name: attr(tok, "name"),
		Type: strings.ToLower(attr(tok, "type")),
	}
	if field.Type == "" {
		switch tok.DataAtom {
		case atom.Textarea:
			field.Type = "textarea"
		case atom.Select:
			field.Type = "select"
		default:
			field.Type = "text"
		}
	}
	return field
}

func resolveAction(base *url.URL, action string) string {
	action = strings.TrimSpace(action)
	if action == "" {
		return base.String()
	}
	u, err := url.Parse(action)
	if err != nil {
		return action
	}
	return base.ResolveReference(u).String()
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// refreshTarget extracts the URL from a Refresh header or meta refresh
// content ("5; url=https://example.com/").
func refreshTarget(content string) string {
	_, rest, ok := strings.Cut(content, ";")
	if !ok {
		rest = content
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 4 || !strings.EqualFold(rest[:3], "url") {
		return ""
	}
	rest = strings.TrimSpace(rest[3:])
	if !strings.HasPrefix(rest, "=") {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rest[1:]), `"'`)
}
