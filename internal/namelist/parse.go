package namelist

import (
	"fmt"
	"regexp"
	"strings"
)

// statementPattern captures the parameter name and everything after '='.
var statementPattern = regexp.MustCompile(`^[ \t]*([A-Za-z_][A-Za-z0-9_%]*(?:[ \t]*\([^()=]*\))?)[ \t]*=(.*)$`)

// Assignment is one `name = value` statement as it appears in a file.
type Assignment struct {
	// Key is the normalised parameter name used for lookups.
	Key string
	// Name is the parameter name exactly as written.
	Name string
	// Raw is the encoded value text.
	Raw string
	// Group is the enclosing namelist group, lower-cased. Empty outside a group.
	Group string
	// Line is the 1-based line number.
	Line int
	// LineStart is the byte offset where the statement's line begins.
	LineStart int
	// Start and End delimit Raw within the document text.
	Start int
	End   int
}

// Group is a `&name ... /` namelist block.
type Group struct {
	Name string
	Line int
	// Close is the byte offset of the terminating '/', or -1 if the group
	// is never closed. CloseLineStart is the start of that line.
	Close          int
	CloseLineStart int
}

// Document is a parsed namelist file. It keeps the original text so values
// can be replaced in place.
type Document struct {
	text        string
	assignments []Assignment
	groups      []Group
}

// Key normalises a parameter name: Fortran names are case-insensitive and
// blanks inside index expressions are not significant.
func Key(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// Parse scans namelist text into a Document.
func Parse(text string) (*Document, error) {
	doc := &Document{text: text}
	current := -1

	offset := 0
	for lineNo := 1; offset <= len(text); lineNo++ {
		end := strings.IndexByte(text[offset:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += offset
		}
		line := strings.TrimSuffix(text[offset:end], "\r")

		if err := doc.scanLine(line, offset, lineNo, &current); err != nil {
			return nil, err
		}

		if end == len(text) {
			break
		}
		offset = end + 1
	}
	return doc, nil
}

func (d *Document) scanLine(line string, lineStart, lineNo int, current *int) error {
	trimmed := strings.TrimSpace(line)
	lead := len(line) - len(strings.TrimLeft(line, " \t"))

	switch {
	case trimmed == "" || trimmed[0] == '!':
		return nil
	case strings.EqualFold(trimmed, "&end"):
		d.closeGroup(*current, lineStart+lead, lineStart)
		*current = -1
		return nil
	case trimmed[0] == '&':
		n := groupNameLen(line[lead+1:])
		if n == 0 {
			return nil
		}
		d.groups = append(d.groups, Group{
			Name:  strings.ToLower(line[lead+1 : lead+1+n]),
			Line:  lineNo,
			Close: -1,
		})
		*current = len(d.groups) - 1
		// "&pgstar /" and "&star_job a = 1 /" carry statements on the
		// header line
		return d.scanStatements(line, lead+1+n, lineStart, lineNo, current)
	}
	return d.scanStatements(line, 0, lineStart, lineNo, current)
}

// scanStatements reads the statements of line from column col on. A line
// may hold several statements separated by commas or blanks, and may end
// with the group terminator.
func (d *Document) scanStatements(line string, col, lineStart, lineNo int, current *int) error {
	for col < len(line) {
		col += len(line[col:]) - len(strings.TrimLeft(line[col:], " \t,"))
		seg := line[col:]
		switch {
		case seg == "" || seg[0] == '!':
			return nil
		case seg[0] == '/':
			d.closeGroup(*current, lineStart+col, lineStart)
			*current = -1
			return nil
		}

		m := statementPattern.FindStringSubmatchIndex(seg)
		if m == nil {
			return nil
		}
		if len(m) != 6 {
			return &ValidationError{
				Line:    lineNo,
				Message: fmt.Sprintf("statement pattern must capture 2 groups, got %d", len(m)/2-1),
			}
		}

		name := seg[m[2]:m[3]]
		at := col + m[4]
		next := at + nextStatement(line[at:])
		value := line[at:next]
		start, stop, slash := scanValue(value)

		if start < stop {
			group := ""
			if *current >= 0 {
				group = d.groups[*current].Name
			}
			d.assignments = append(d.assignments, Assignment{
				Key:       Key(name),
				Name:      name,
				Raw:       value[start:stop],
				Group:     group,
				Line:      lineNo,
				LineStart: lineStart,
				Start:     lineStart + at + start,
				End:       lineStart + at + stop,
			})
		}
		if slash >= 0 {
			d.closeGroup(*current, lineStart+at+slash, lineStart)
			*current = -1
			return nil
		}
		col = next
	}
	return nil
}

// nextBoundary matches the separator and `name =` opening the next statement.
var nextBoundary = regexp.MustCompile(`^[ \t]*,?[ \t]*[A-Za-z_][A-Za-z0-9_%]*(?:[ \t]*\([^()=]*\))?[ \t]*=`)

// nextStatement returns the offset in value text s where a further statement
// begins, or len(s). Quoted text and comments are never split.
func nextStatement(s string) int {
	var quote byte
	seen := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			seen = true
		case c == '!':
			return len(s)
		case c == ',' || isBlank(c):
			if seen && nextBoundary.MatchString(s[i:]) {
				return i
			}
		default:
			seen = true
		}
	}
	return len(s)
}

func groupNameLen(s string) int {
	n := 0
	for n < len(s) && (s[n] == '_' || s[n] >= '0' && s[n] <= '9' ||
		s[n] >= 'a' && s[n] <= 'z' || s[n] >= 'A' && s[n] <= 'Z') {
		n++
	}
	return n
}

func (d *Document) closeGroup(idx, at, lineStart int) {
	if idx < 0 {
		return
	}
	d.groups[idx].Close = at
	d.groups[idx].CloseLineStart = lineStart
}

// scanValue locates the value inside the text following '='. It stops at an
// unquoted '!' comment and drops blanks, a trailing ',' and a trailing group
// terminator '/'. slash is the offset of that terminator or -1.
func scanValue(s string) (start, end, slash int) {
	slash = -1
	cut := len(s)
	var quote byte
scan:
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '!':
			cut = i
			break scan
		}
	}

	end = trimRight(s, cut)
	if quote == 0 && end > 0 && s[end-1] == '/' {
		slash = end - 1
		end = trimRight(s, end-1)
	}
	if end > 0 && s[end-1] == ',' {
		end = trimRight(s, end-1)
	}
	for start < end && isBlank(s[start]) {
		start++
	}
	return start, end, slash
}

func trimRight(s string, end int) int {
	for end > 0 && isBlank(s[end-1]) {
		end--
	}
	return end
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

// Text returns the source text of the document.
func (d *Document) Text() string { return d.text }

// Assignments returns every statement in file order, duplicates included.
func (d *Document) Assignments() []Assignment { return d.assignments }

// Groups returns the namelist groups in file order.
func (d *Document) Groups() []Group { return d.groups }

// Group returns the first group with the given name.
func (d *Document) Group(name string) (Group, bool) {
	name = strings.ToLower(name)
	for _, g := range d.groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// Lookup returns the effective assignment for name, which is the last one in
// the file.
func (d *Document) Lookup(name string) (Assignment, bool) {
	key := Key(name)
	for i := len(d.assignments) - 1; i >= 0; i-- {
		if d.assignments[i].Key == key {
			return d.assignments[i], true
		}
	}
	return Assignment{}, false
}

// LastInGroup returns the last assignment inside the named group.
func (d *Document) LastInGroup(name string) (Assignment, bool) {
	name = strings.ToLower(name)
	for i := len(d.assignments) - 1; i >= 0; i-- {
		if d.assignments[i].Group == name {
			return d.assignments[i], true
		}
	}
	return Assignment{}, false
}

// Indent returns the leading blanks of the line holding a. A statement that
// shares its line with the group header gets four blanks.
func (d *Document) Indent(a Assignment) string {
	line := d.text[a.LineStart:a.Start]
	rest := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(rest, "&") {
		return "    "
	}
	return line[:len(line)-len(rest)]
}

// Params returns the name to raw value mapping. Later statements overwrite
// earlier ones.
func (d *Document) Params() *Params {
	p := NewParams()
	for _, a := range d.assignments {
		p.Set(a.Key, a.Raw)
	}
	return p
}

// Replace returns the document text with a's value swapped for raw.
func (d *Document) Replace(a Assignment, raw string) string {
	return d.text[:a.Start] + raw + d.text[a.End:]
}

// InsertLine returns the document text with line added just before the
// terminator of group g, using the file's line ending. A terminator sharing
// its line with other text is moved onto a line of its own.
func (d *Document) InsertLine(g Group, line string) string {
	eol := d.lineEnding(g.Close)
	if strings.TrimSpace(d.text[g.CloseLineStart:g.Close]) == "" {
		at := g.CloseLineStart
		return d.text[:at] + line + eol + d.text[at:]
	}
	cut := trimRight(d.text, g.Close)
	return d.text[:cut] + eol + line + eol + d.text[g.Close:]
}

// lineEnding reports the terminator of the line holding offset at, falling
// back to the first one in the document.
func (d *Document) lineEnding(at int) string {
	rest := d.text[at:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		if i > 0 && rest[i-1] == '\r' {
			return "\r\n"
		}
		return "\n"
	}
	if i := strings.IndexByte(d.text, '\n'); i > 0 && d.text[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// Params is an insertion ordered mapping of parameter key to raw value.
type Params struct {
	keys []string
	raw  map[string]string
}

// NewParams returns an empty mapping.
func NewParams() *Params {
	return &Params{raw: make(map[string]string)}
}

// Set stores raw under key, keeping the position of the first insertion.
func (p *Params) Set(key, raw string) {
	if _, ok := p.raw[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.raw[key] = raw
}

// Get returns the raw value for key.
func (p *Params) Get(key string) (string, bool) {
	raw, ok := p.raw[key]
	return raw, ok
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string { return p.keys }

// Len returns the number of keys.
func (p *Params) Len() int { return len(p.keys) }
