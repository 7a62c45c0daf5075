package parse

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

// Stage names the rung of the fallback ladder that produced an envelope.
type Stage string

const (
	StageStrict   Stage = "strict"
	StageFenced   Stage = "fenced"
	StageFallback Stage = "fallback"
)

const (
	DefaultPreviewLength = 1000
	DefaultMaxInputBytes = 1 << 20

	emptyResponseText = "(the assistant returned an empty response)"
	ellipsis          = "…"
)

var (
	ErrNoFencedBlock = errors.New("no fenced code block found")
	ErrInputTooLarge = errors.New("generator output exceeds the maximum parse size")
)

// Options bounds the parser's work and the size of fallback text.
type Options struct {
	// PreviewLength is the maximum number of runes kept in a fallback text block.
	PreviewLength int
	// MaxInputBytes makes larger inputs skip straight to the fallback.
	MaxInputBytes int
}

func (o Options) withDefaults() Options {
	if o.PreviewLength <= 0 {
		o.PreviewLength = DefaultPreviewLength
	}
	if o.MaxInputBytes <= 0 {
		o.MaxInputBytes = DefaultMaxInputBytes
	}
	return o
}

// Result is the outcome of parsing generator output. Envelope is never nil.
// Err is set when the fallback was used and explains why.
type Result struct {
	Envelope *blocks.Envelope
	Stage    Stage
	Err      error
}

// Parser turns raw generator output into a validated block envelope.
type Parser struct {
	opts Options
}

func NewParser(opts Options) *Parser {
	return &Parser{opts: opts.withDefaults()}
}

// Parse returns the envelope for raw, falling back to a plain text block.
// It never fails.
func (p *Parser) Parse(raw string) *blocks.Envelope {
	return p.ParseWithResult(raw).Envelope
}

// ParseWithResult runs the fallback ladder:
//  1. raw is strictly decoded as an envelope
//  2. the first fenced code block of raw is strictly decoded as an envelope
//  3. a single text block with a preview of raw, flagged parseFailed
//
// A validation failure of a decoded envelope goes directly to step 3.
func (p *Parser) ParseWithResult(raw string) Result {
	if len(raw) > p.opts.MaxInputBytes {
		return p.fallback(raw, ErrInputTooLarge)
	}

	env, err := blocks.DecodeEnvelope([]byte(strings.TrimSpace(raw)))
	if err == nil {
		if verr := blocks.ValidateGenerated(env); verr != nil {
			return p.fallback(raw, verr)
		}
		return Result{Envelope: env, Stage: StageStrict}
	}
	strictErr := err

	fenced, ok := ExtractFirstFencedBlock(raw)
	if !ok {
		return p.fallback(raw, errors.Wrap(ErrNoFencedBlock, strictErr.Error()))
	}
	env, err = blocks.DecodeEnvelope([]byte(strings.TrimSpace(fenced)))
	if err != nil {
		return p.fallback(raw, errors.Wrap(err, "fenced block"))
	}
	if verr := blocks.ValidateGenerated(env); verr != nil {
		return p.fallback(raw, verr)
	}
	return Result{Envelope: env, Stage: StageFenced}
}

func (p *Parser) fallback(raw string, cause error) Result {
	content := Truncate(raw, p.opts.PreviewLength)
	if strings.TrimSpace(content) == "" {
		content = emptyResponseText
	}
	env := blocks.NewEnvelope(blocks.NewText(content))
	env.Metadata.ParseFailed = true
	return Result{Envelope: env, Stage: StageFallback, Err: cause}
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
// Invalid UTF-8 sequences are replaced so the result is always valid text.
func Truncate(s string, n int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + ellipsis
		}
		count++
	}
	return s
}

var defaultParser = NewParser(Options{})

// Parse parses raw with the default options.
func Parse(raw string) *blocks.Envelope {
	return defaultParser.Parse(raw)
}
