package models

import "strings"

// SegmentKind tells the renderer how to present a piece of message text.
type SegmentKind int

const (
	// SegmentText is literal text.
	SegmentText SegmentKind = iota
	// SegmentCode is text enclosed in a pair of triple backticks, shown as a monospace block.
	SegmentCode
	// SegmentStrong is text enclosed in a pair of double asterisks, shown emphasized.
	SegmentStrong
)

const (
	codeDelimiter   = "```"
	strongDelimiter = "**"
)

// Segment is a run of message text with a single presentation.
type Segment struct {
	Kind SegmentKind
	Text string
}

// ParseMarkup splits text into segments using the two lightweight conventions understood by the chat bubbles.
//
// The text is first split on triple backticks; odd parts are code. Every other part is then split on double
// asterisks; odd parts are strong. Delimiters are consumed strictly in split order, so emphasis never spans a
// code block. When a delimiter has no closing partner, the trailing part is kept as literal text together with
// its delimiter. Adjacent literal segments are merged and empty segments are dropped.
func ParseMarkup(text string) []Segment {
	var segs []Segment

	parts := strings.Split(text, codeDelimiter)
	for i, part := range parts {
		if i%2 == 1 {
			if i == len(parts)-1 {
				segs = appendSegment(segs, SegmentText, codeDelimiter+part)
				continue
			}
			segs = appendSegment(segs, SegmentCode, part)
			continue
		}
		segs = appendStrongSegments(segs, part)
	}

	return segs
}

func appendStrongSegments(segs []Segment, text string) []Segment {
	parts := strings.Split(text, strongDelimiter)
	for i, part := range parts {
		switch {
		case i%2 == 0:
			segs = appendSegment(segs, SegmentText, part)
		case i == len(parts)-1:
			segs = appendSegment(segs, SegmentText, strongDelimiter+part)
		default:
			segs = appendSegment(segs, SegmentStrong, part)
		}
	}
	return segs
}

func appendSegment(segs []Segment, kind SegmentKind, text string) []Segment {
	if text == "" {
		return segs
	}
	if kind == SegmentText && len(segs) > 0 && segs[len(segs)-1].Kind == SegmentText {
		segs[len(segs)-1].Text += text
		return segs
	}
	return append(segs, Segment{Kind: kind, Text: text})
}
