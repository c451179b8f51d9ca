package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/jjenkins/lawarchive/internal/citation"
	"github.com/jjenkins/lawarchive/internal/model"
)

// ParseOptions tells the parser what it is reading.
type ParseOptions struct {
	Jurisdiction string
	// Title overrides the title number declared in the document.
	Title int
}

// ParseResult contains the section trees and citation spans extracted from
// one document
type ParseResult struct {
	TitleNumber int
	TitleName   string
	Sections    []model.Section
	Spans       []citation.Span
	Warnings    []string
	Checksum    string
}

// Parser handles USLM content parsing
type Parser struct {
	matcher *citation.Matcher
	logger  *slog.Logger
}

// NewParser creates a new Parser
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{matcher: citation.NewMatcher(), logger: logger}
}

var levels = map[string]bool{
	"subsection":   true,
	"paragraph":    true,
	"subparagraph": true,
	"clause":       true,
	"subclause":    true,
	"item":         true,
	"subitem":      true,
	"subsubitem":   true,
}

var textContainers = map[string]bool{
	"content":      true,
	"chapeau":      true,
	"continuation": true,
	"text":         true,
	"p":            true,
}

var skipped = map[string]bool{
	"notes":        true,
	"note":         true,
	"sourceCredit": true,
	"toc":          true,
	"layout":       true,
	"meta":         true,
}

var reservedStatus = map[string]bool{
	"repealed":    true,
	"reserved":    true,
	"transferred": true,
	"omitted":     true,
}

var reservedHeading = regexp.MustCompile(`(?i)^\[?\s*(reserved|repealed|omitted|transferred)\b`)

var titleIdentifier = regexp.MustCompile(`/t(\d+)(?:/|$)`)

// element is a parsed subtree; children are *element or string.
type element struct {
	name     string
	attrs    map[string]string
	children []interface{}
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if el, ok := c.(*element); ok && el.name == name {
			return el
		}
	}
	return nil
}

func (e *element) text() string {
	var b strings.Builder
	var walk func(*element)
	walk = func(el *element) {
		for _, c := range el.children {
			switch v := c.(type) {
			case string:
				b.WriteString(v)
			case *element:
				walk(v)
			}
		}
	}
	walk(e)
	return strings.Join(strings.Fields(b.String()), " ")
}

type frame struct {
	name   string
	path   string
	counts map[string]int
}

func (f *frame) childPath(name string) string {
	f.counts[name]++
	if n := f.counts[name]; n > 1 {
		return fmt.Sprintf("%s/%s[%d]", f.path, name, n)
	}
	return f.path + "/" + name
}

// Parse extracts sections from USLM content
func (p *Parser) Parse(content []byte, opts ParseOptions) (*ParseResult, error) {
	result := &ParseResult{Checksum: calculateChecksum(content)}

	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.Entity = xml.HTMLEntity

	root := &frame{counts: make(map[string]int)}
	stack := []*frame{root}
	b := &treeBuilder{parser: p, result: result, sectionLabels: newLabeler()}

	var (
		declaredTitle string
		sectionSeen   bool
	)

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		top := stack[len(stack)-1]
		if err != nil {
			return nil, &model.MalformedDocumentError{Path: pathOf(top), Reason: "invalid XML", Err: err}
		}

		switch t := token.(type) {
		case xml.StartElement:
			name := t.Name.Local
			path := top.childPath(name)

			switch {
			case skipped[name]:
				if err := decoder.Skip(); err != nil {
					return nil, &model.MalformedDocumentError{Path: path, Reason: "invalid XML", Err: err}
				}
				continue

			case name == "section":
				el, err := readElement(decoder, t)
				if err != nil {
					return nil, &model.MalformedDocumentError{Path: path, Reason: "invalid XML", Err: err}
				}
				b.section(el, path)
				sectionSeen = true
				continue

			case levels[name]:
				return nil, &model.MalformedDocumentError{Path: path, Reason: name + " outside any section"}

			case top.name == "title" && (name == "num" || name == "heading"):
				el, err := readElement(decoder, t)
				if err != nil {
					return nil, &model.MalformedDocumentError{Path: path, Reason: "invalid XML", Err: err}
				}
				if name == "num" && declaredTitle == "" {
					declaredTitle = el.attrs["value"]
					if declaredTitle == "" {
						declaredTitle = model.CleanLabel(strings.TrimPrefix(el.text(), "Title"))
					}
				}
				if name == "heading" && result.TitleName == "" {
					result.TitleName = el.text()
				}
				continue

			case name == "title" && declaredTitle == "":
				if m := titleIdentifier.FindStringSubmatch(attr(t, "identifier")); m != nil {
					declaredTitle = m[1]
				}
			}

			stack = append(stack, &frame{name: name, path: path, counts: make(map[string]int)})

		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) > 1 {
		return nil, &model.MalformedDocumentError{Path: pathOf(stack[len(stack)-1]), Reason: "unexpected end of document"}
	}
	if !sectionSeen {
		return nil, &model.MalformedDocumentError{Path: "/", Reason: "document contains no sections"}
	}

	title := opts.Title
	if title == 0 {
		n, err := strconv.Atoi(strings.TrimSpace(declaredTitle))
		if err != nil || n <= 0 {
			return nil, &model.MalformedDocumentError{Path: "/", Reason: "no title number declared"}
		}
		title = n
	}
	result.TitleNumber = title
	for i := range result.Sections {
		result.Sections[i].Title = title
	}
	for i := range result.Spans {
		result.Spans[i].Source.Title = title
	}

	for _, w := range result.Warnings {
		p.logger.Warn("parse warning", "title", title, "warning", w)
	}
	return result, nil
}

func pathOf(f *frame) string {
	if f.path == "" {
		return "/"
	}
	return f.path
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// readElement consumes tokens up to the end of start and returns the subtree.
func readElement(decoder *xml.Decoder, start xml.StartElement) (*element, error) {
	el := &element{name: start.Name.Local, attrs: make(map[string]string, len(start.Attr))}
	for _, a := range start.Attr {
		el.attrs[a.Name.Local] = a.Value
	}
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			child, err := readElement(decoder, t)
			if err != nil {
				return nil, err
			}
			el.children = append(el.children, child)
		case xml.CharData:
			el.children = append(el.children, string(t))
		case xml.EndElement:
			return el, nil
		}
	}
}

// labeler assigns sibling labels, suffixing duplicates and noting order.
type labeler struct {
	seen map[string]int
	prev string
}

func newLabeler() *labeler {
	return &labeler{seen: make(map[string]int)}
}

func (l *labeler) assign(label string) (string, string) {
	var warning string
	if l.prev != "" && orderable(l.prev, label) && model.CompareSectionLabels(l.prev, label) > 0 {
		warning = fmt.Sprintf("label %q follows %q", label, l.prev)
	}
	l.prev = label

	l.seen[label]++
	if n := l.seen[label]; n > 1 {
		return fmt.Sprintf("%s-%d", label, n), warning
	}
	return label, warning
}

// orderable limits ordering checks to numbers and single letters; roman
// numerals do not sort lexically.
func orderable(a, b string) bool {
	numeric := func(s string) bool { return s != "" && unicode.IsDigit(rune(s[0])) }
	letter := func(s string) bool { return len(s) == 1 && unicode.IsLetter(rune(s[0])) }
	return (numeric(a) && numeric(b)) || (letter(a) && letter(b) && unicode.IsUpper(rune(a[0])) == unicode.IsUpper(rune(b[0])))
}

func elementLabel(el *element, ordinal int) string {
	num := el.child("num")
	if num != nil {
		if v := model.CleanLabel(num.attrs["value"]); v != "" {
			return v
		}
	}
	if id := el.attrs["identifier"]; id != "" {
		seg := id[strings.LastIndex(id, "/")+1:]
		if el.name == "section" {
			seg = strings.TrimPrefix(seg, "s")
		}
		if seg = model.CleanLabel(seg); seg != "" {
			return seg
		}
	}
	if num != nil {
		if v := model.CleanLabel(num.text()); v != "" {
			return v
		}
	}
	return fmt.Sprintf("_%d", ordinal)
}

type treeBuilder struct {
	parser        *Parser
	result        *ParseResult
	sectionLabels *labeler
	sectionCount  int
}

func (b *treeBuilder) warn(path, msg string) {
	if msg != "" {
		b.result.Warnings = append(b.result.Warnings, path+": "+msg)
	}
}

func (b *treeBuilder) section(el *element, path string) {
	b.sectionCount++
	label, warning := b.sectionLabels.assign(elementLabel(el, b.sectionCount))
	b.warn(path, warning)

	sec := model.Section{
		Section: label,
		Status:  el.attrs["status"],
	}
	key := model.Key{Section: label}
	n := b.node(el, key, path)
	sec.Num, sec.Heading, sec.Body, sec.Subsections = n.Num, n.Heading, n.Body, n.Subsections
	sec.Reserved = n.Reserved
	b.result.Sections = append(b.result.Sections, sec)
}

// node builds the shared part of a section or nested unit.
func (b *treeBuilder) node(el *element, key model.Key, path string) model.Subsection {
	var out model.Subsection
	if num := el.child("num"); num != nil {
		out.Num = num.text()
	}
	if h := el.child("heading"); h != nil {
		out.Heading = h.text()
	}

	body := &bodyBuilder{}
	labels := newLabeler()
	counts := make(map[string]int)
	ordinal := 0

	var visit func(children []interface{})
	visit = func(children []interface{}) {
		for _, c := range children {
			switch v := c.(type) {
			case string:
				body.write(v)
			case *element:
				switch {
				case v.name == "num" || v.name == "heading" || skipped[v.name]:
				case levels[v.name]:
					ordinal++
					counts[v.name]++
					childPath := fmt.Sprintf("%s/%s[%d]", path, v.name, counts[v.name])
					label, warning := labels.assign(elementLabel(v, ordinal))
					b.warn(childPath, warning)

					childKey := key
					childKey.Subsection = key.Subsection + model.SubsectionPath(label)
					child := b.node(v, childKey, childPath)
					child.ID = childKey.Subsection
					child.Label = label
					child.Level = v.name
					out.Subsections = append(out.Subsections, child)
				case textContainers[v.name]:
					body.separate()
					body.inline(v)
					body.separate()
				default:
					visit(v.children)
				}
			}
		}
	}
	visit(el.children)

	out.Body = body.String()
	b.spans(key, out.Body, body.refs)

	out.Reserved = reservedStatus[strings.ToLower(el.attrs["status"])] ||
		reservedHeading.MatchString(out.Heading) ||
		(out.Body == "" && len(out.Subsections) == 0)
	return out
}

// spans records explicit links and the free-text citations that do not
// overlap them.
func (b *treeBuilder) spans(key model.Key, body string, refs []refSpan) {
	for _, r := range refs {
		b.result.Spans = append(b.result.Spans, citation.Span{Source: key, Offset: r.start, Raw: r.raw, Href: r.href})
	}
	for _, m := range b.parser.matcher.Find(body) {
		if overlapsRef(m.Start, m.End, refs) {
			continue
		}
		b.result.Spans = append(b.result.Spans, citation.Span{Source: key, Offset: m.Start, Raw: m.Raw})
	}
}

func overlapsRef(start, end int, refs []refSpan) bool {
	for _, r := range refs {
		if start < r.end && r.start < end {
			return true
		}
	}
	return false
}

type refSpan struct {
	start, end int
	raw, href  string
}

// bodyBuilder collapses whitespace while tracking byte offsets of links.
type bodyBuilder struct {
	b       strings.Builder
	pending bool
	refs    []refSpan
}

func (bb *bodyBuilder) write(s string) {
	for _, r := range s {
		if unicode.IsSpace(r) {
			bb.pending = true
			continue
		}
		if bb.pending && bb.b.Len() > 0 {
			bb.b.WriteByte(' ')
		}
		bb.pending = false
		bb.b.WriteRune(r)
	}
}

func (bb *bodyBuilder) separate() {
	bb.pending = true
}

// inline writes a text container, recording <ref> spans.
func (bb *bodyBuilder) inline(el *element) {
	for _, c := range el.children {
		switch v := c.(type) {
		case string:
			bb.write(v)
		case *element:
			if skipped[v.name] {
				continue
			}
			if v.name != "ref" {
				bb.inline(v)
				continue
			}
			text := v.text()
			if text == "" {
				continue
			}
			before := bb.b.Len()
			bb.write(text)
			// A pending separator may have been written ahead of the link.
			start := before
			if bb.b.String()[before] == ' ' {
				start++
			}
			bb.refs = append(bb.refs, refSpan{start: start, end: bb.b.Len(), raw: text, href: v.attrs["href"]})
		}
	}
}

func (bb *bodyBuilder) String() string {
	return bb.b.String()
}

// calculateChecksum computes the SHA-256 of content
func calculateChecksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// IsMalformed reports whether err is a parse failure.
func IsMalformed(err error) bool {
	var m *model.MalformedDocumentError
	return errors.As(err, &m)
}
