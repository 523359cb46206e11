package story

import (
	"fmt"
	"strings"
)

const (
	replyMarker    = "[AI_RESPONSE]"
	generatePrefix = "[AI_GENERATE:"
)

// Segment is a piece of a fragment: Text, AIReply or AIGenerate.
type Segment interface {
	segment()
}

// Text is literal narration.
type Text struct {
	Content string
}

// AIReply is replaced by the active persona's answer to the last player input.
type AIReply struct{}

// AIGenerate is replaced by narration generated for Prompt.
type AIGenerate struct {
	Prompt string
}

func (Text) segment()       {}
func (AIReply) segment()    {}
func (AIGenerate) segment() {}

// ParseSegments splits raw story text into literal text and markers.
func ParseSegments(raw string) ([]Segment, error) {
	var segs []Segment
	rest := raw
	for rest != "" {
		ri := strings.Index(rest, replyMarker)
		gi := strings.Index(rest, generatePrefix)

		switch {
		case ri < 0 && gi < 0:
			segs = append(segs, Text{Content: rest})
			rest = ""

		case gi < 0 || (ri >= 0 && ri < gi):
			if ri > 0 {
				segs = append(segs, Text{Content: rest[:ri]})
			}
			segs = append(segs, AIReply{})
			rest = rest[ri+len(replyMarker):]

		default:
			if gi > 0 {
				segs = append(segs, Text{Content: rest[:gi]})
			}
			body := rest[gi+len(generatePrefix):]
			end := strings.Index(body, "]")
			if end < 0 {
				return nil, fmt.Errorf("unterminated %s marker", generatePrefix)
			}
			prompt := strings.TrimSpace(body[:end])
			if prompt == "" {
				return nil, fmt.Errorf("empty prompt in %s marker", generatePrefix)
			}
			segs = append(segs, AIGenerate{Prompt: prompt})
			rest = body[end+1:]
		}
	}
	return segs, nil
}
