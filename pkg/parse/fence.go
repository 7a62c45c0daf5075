package parse

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractFirstFencedBlock returns the contents of the first fenced code block
// in a markdown document, without the fences. The info string (language) is
// ignored, so ```json, ``` and ~~~ fences all match.
//
// This is a heuristic: generator output that wraps its payload differently
// (say, in an indented block or XML-ish tags) will not match.
func ExtractFirstFencedBlock(markdown string) (string, bool) {
	source := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var (
		found bool
		code  bytes.Buffer
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		cb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		found = true
		lines := cb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			code.Write(seg.Value(source))
		}
		return ast.WalkStop, nil
	})
	return code.String(), found
}
