package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultComponentName names the component of a recipe without sub-parts
const DefaultComponentName = "Main"

// ParseError reports post content that is present but cannot become a recipe
type ParseError struct {
	PostID string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse post"
	if e.PostID != "" {
		msg += " " + e.PostID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type section int

const (
	sectionNone section = iota
	sectionIngredients
	sectionSteps
)

var (
	lineBreakTagRe = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>|</\s*(?:p|li|div|h[1-6])\s*>`)
	hashtagRe      = regexp.MustCompile(`#(\p{L}[\p{L}\p{N}_]*)`)
	stepPrefixRe   = regexp.MustCompile(`(?i)^\s*(?:step\s*)?\d+\s*[.):\-]\s*|^\s*step\s*\d+\s*`)
	numberedLineRe = regexp.MustCompile(`(?i)^\s*(?:step\s*)?\d+\s*[.)]\s+\S`)
	durationRe     = regexp.MustCompile(`(?i)(\d+)\s*(?:-\s*\d+\s*)?(minutes?|mins?|hours?|hrs?)\b`)
	servesRe       = regexp.MustCompile(`(?i)^(?:serves|servings|yield|makes)\s*:?\s*(\d+)`)
	prepRe         = regexp.MustCompile(`(?i)^prep(?:aration)?(?:\s*time)?\s*:\s*(\d+)\s*(minutes?|mins?|hours?|hrs?|h)?`)
	cookRe         = regexp.MustCompile(`(?i)^cook(?:ing)?(?:\s*time)?\s*:\s*(\d+)\s*(minutes?|mins?|hours?|hrs?|h)?`)
)

var ingredientHeaders = map[string]struct{}{
	"ingredients": {}, "ingredient": {}, "you'll need": {}, "you will need": {}, "what you need": {},
}

var stepHeaders = map[string]struct{}{
	"steps": {}, "instructions": {}, "method": {}, "directions": {}, "preparation": {},
	"how to make it": {}, "how to make": {},
}

// Parser converts raw post content into validated drafts. It is safe for
// concurrent use.
type Parser struct {
	policy *bluemonday.Policy
}

// NewParser creates a parser that strips all markup from captions
func NewParser() *Parser {
	return &Parser{policy: bluemonday.StrictPolicy()}
}

// Parse builds a draft from a structured payload when the post carries one,
// otherwise from the caption text. The draft is normalized and validated;
// any violation is returned as a *ParseError wrapping a *ValidationError.
func (p *Parser) Parse(raw *RawContent) (*Draft, error) {
	if raw == nil {
		return nil, &ParseError{Reason: "empty content"}
	}

	var (
		draft *Draft
		err   error
	)
	if structured := bytes.TrimSpace(raw.Structured); len(structured) > 0 && !bytes.Equal(structured, []byte("null")) {
		draft, err = decodeStructured(structured)
	} else {
		draft, err = p.parseCaption(raw)
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.PostID = raw.PostID
			return nil, pe
		}
		return nil, &ParseError{PostID: raw.PostID, Reason: "malformed structured payload", Err: err}
	}

	if draft.Title == "" {
		draft.Title = raw.Title
	}
	draft.SourcePostID = raw.PostID
	if draft.SourceURL == "" {
		draft.SourceURL = raw.SourceURL
	}
	if draft.Author == "" {
		draft.Author = raw.Author
	}

	Normalize(draft)
	if err := Validate(draft).Err(); err != nil {
		return nil, &ParseError{PostID: raw.PostID, Reason: "invalid recipe", Err: err}
	}
	return draft, nil
}

func decodeStructured(data []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode recipe payload: %w", err)
	}
	return &d, nil
}

func (p *Parser) parseCaption(raw *RawContent) (*Draft, error) {
	text := lineBreakTagRe.ReplaceAllString(raw.Caption, "\n")
	text = html.UnescapeString(p.policy.Sanitize(text))
	if strings.TrimSpace(text) == "" && strings.TrimSpace(raw.Title) == "" {
		return nil, &ParseError{Reason: "empty content"}
	}

	d := &Draft{Title: strings.TrimSpace(raw.Title)}
	components := []Component{{}}
	current := func() *Component { return &components[len(components)-1] }
	startComponent := func(name string) {
		c := current()
		if len(c.Ingredients) == 0 && len(c.Steps) == 0 {
			c.Name = name
			return
		}
		components = append(components, Component{Name: name})
	}

	var description []string
	sec := sectionNone

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for _, m := range hashtagRe.FindAllStringSubmatch(line, -1) {
			d.Tags = append(d.Tags, m[1])
		}
		line = collapseSpace(hashtagRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}

		matched, err := parseMetadata(d, line)
		if err != nil {
			return nil, &ParseError{Reason: "invalid metadata", Err: err}
		}
		if matched {
			continue
		}

		header := strings.ToLower(strings.Trim(line, " :*-=_~"))
		if _, ok := ingredientHeaders[header]; ok {
			if sec == sectionSteps {
				startComponent("")
			}
			sec = sectionIngredients
			continue
		}
		if _, ok := stepHeaders[header]; ok {
			sec = sectionSteps
			continue
		}
		if sec == sectionNone && d.Title == "" {
			d.Title = line
			continue
		}
		if name, ok := componentHeader(line); ok {
			startComponent(name)
			if sec == sectionNone || sec == sectionSteps {
				sec = sectionIngredients
			}
			continue
		}

		switch sec {
		case sectionIngredients:
			if ing, ok := ParseIngredientLine(line); ok {
				current().Ingredients = append(current().Ingredients, ing)
			}
		case sectionSteps:
			appendStep(current(), line)
		default:
			switch {
			case numberedLineRe.MatchString(line):
				appendStep(current(), line)
			case bulletRe.MatchString(line):
				if ing, ok := ParseIngredientLine(line); ok && ing.Quantity != nil {
					current().Ingredients = append(current().Ingredients, ing)
					continue
				}
				description = append(description, line)
			default:
				description = append(description, line)
			}
		}
	}

	d.Description = strings.Join(description, "\n")

	for _, c := range components {
		if len(c.Ingredients) == 0 && len(c.Steps) == 0 {
			continue
		}
		if len(c.Steps) == 0 {
			c.Steps = GenerateSteps(d.Title, c.Ingredients)
		}
		d.Components = append(d.Components, c)
	}

	return d, nil
}

// componentHeader recognises short label lines such as "For the sauce:"
func componentHeader(line string) (string, bool) {
	if !strings.HasSuffix(line, ":") || bulletRe.MatchString(line) {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimSuffix(line, ":"))
	if name == "" || len(strings.Fields(name)) > 4 || strings.ContainsAny(name, "0123456789") {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, prefix := range []string{"ingredients for the ", "ingredients for ", "for the ", "for "} {
		if strings.HasPrefix(lower, prefix) {
			name = name[len(prefix):]
			break
		}
	}
	return capitalize(name), name != ""
}

func appendStep(c *Component, line string) {
	instruction := strings.TrimSpace(stepPrefixRe.ReplaceAllString(line, ""))
	instruction = strings.TrimSpace(bulletRe.ReplaceAllString(instruction, ""))
	if instruction == "" {
		return
	}
	step := Step{Order: len(c.Steps) + 1, Instruction: instruction}
	if m := durationRe.FindStringSubmatch(instruction); m != nil {
		if minutes, err := toMinutes(m[1], m[2]); err == nil {
			step.DurationMinutes = intPtr(minutes)
		}
	}
	c.Steps = append(c.Steps, step)
}

// parseMetadata extracts servings and timing lines into the draft. A
// metadata line whose number does not fit a count is an error.
func parseMetadata(d *Draft, line string) (bool, error) {
	if m := servesRe.FindStringSubmatch(line); m != nil {
		n, err := parseCount(m[1], 1)
		if err != nil {
			return true, fmt.Errorf("servings: %w", err)
		}
		d.Servings = intPtr(n)
		return true, nil
	}
	if m := prepRe.FindStringSubmatch(line); m != nil {
		minutes, err := toMinutes(m[1], m[2])
		if err != nil {
			return true, fmt.Errorf("prep time: %w", err)
		}
		d.PrepTimeMinutes = intPtr(minutes)
		return true, nil
	}
	if m := cookRe.FindStringSubmatch(line); m != nil {
		minutes, err := toMinutes(m[1], m[2])
		if err != nil {
			return true, fmt.Errorf("cook time: %w", err)
		}
		d.CookTimeMinutes = intPtr(minutes)
		return true, nil
	}
	return false, nil
}

func toMinutes(value, unit string) (int, error) {
	scale := 1
	if strings.HasPrefix(strings.ToLower(unit), "h") {
		scale = 60
	}
	return parseCount(value, scale)
}

// parseCount parses a run of digits and multiplies it by scale, failing
// with ErrOutOfRange when the result would exceed MaxCount.
func parseCount(digits string, scale int) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil || n > MaxCount/scale {
		return 0, fmt.Errorf("%s is %w", digits, ErrOutOfRange)
	}
	return n * scale, nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
