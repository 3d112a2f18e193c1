package packet

// Tags produced by InferTextSpans.
const (
	TagVerb     = "verb"
	TagArgument = "argument"
)

// InferTextSpans derives field spans for line-oriented text protocols
// (FTP, SMTP, HTTP request lines): the first token is the verb, the rest of
// the line up to the terminator is the argument and a trailing CRLF or LF is
// the envelope. Binary payloads get no spans.
func InferTextSpans(data []byte) []FieldSpan {
	if len(data) == 0 || !isText(data) {
		return nil
	}

	end := len(data)
	var spans []FieldSpan
	switch {
	case end >= 2 && data[end-2] == '\r' && data[end-1] == '\n':
		spans = append(spans, FieldSpan{Offset: end - 2, Length: 2, Tag: TagEnvelope})
		end -= 2
	case data[end-1] == '\n':
		spans = append(spans, FieldSpan{Offset: end - 1, Length: 1, Tag: TagEnvelope})
		end--
	}

	verbEnd := 0
	for verbEnd < end && data[verbEnd] != ' ' {
		verbEnd++
	}
	if verbEnd > 0 {
		spans = append(spans, FieldSpan{Offset: 0, Length: verbEnd, Tag: TagVerb})
	}
	if argStart := verbEnd + 1; argStart < end {
		spans = append(spans, FieldSpan{Offset: argStart, Length: end - argStart, Tag: TagArgument})
	}
	return spans
}

func isText(data []byte) bool {
	for _, b := range data {
		if b == '\r' || b == '\n' || b == '\t' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
