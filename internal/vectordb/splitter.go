package vectordb

import (
	"path/filepath"
	"strings"
)

// defaultSeparators split on structural boundaries first and fall back
// to character-level splitting only when a segment is still too large.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

var codeSeparators = map[string][]string{
	".py": {"\nclass ", "\ndef ", "\n\tdef ", "\n\n", "\n", " ", ""},
	".go": {"\nfunc ", "\ntype ", "\nconst ", "\nvar ", "\n\n", "\n", " ", ""},
	".js": {"\nfunction ", "\nconst ", "\nclass ", "\n\n", "\n", " ", ""},
	".ts": {"\nfunction ", "\nconst ", "\nclass ", "\ninterface ", "\n\n", "\n", " ", ""},
	".md": {"\n## ", "\n### ", "\n\n", "\n", " ", ""},
}

// SplitText splits text into chunks of at most chunkSize runes with
// chunkOverlap runes carried between adjacent chunks. Separators are
// chosen by the source file's extension.
func SplitText(source, text string, chunkSize, chunkOverlap int) []string {
	seps := defaultSeparators
	if s, ok := codeSeparators[strings.ToLower(filepath.Ext(source))]; ok {
		seps = s
	}
	// Pieces leave room for the carried overlap so merged chunks never
	// exceed chunkSize.
	pieces := splitRecursive(text, chunkSize-chunkOverlap, seps)
	return mergeWithOverlap(pieces, chunkSize, chunkOverlap)
}

// splitRecursive cuts text into pieces no longer than limit, trying
// coarser separators before finer ones.
func splitRecursive(text string, limit int, seps []string) []string {
	if len([]rune(text)) <= limit {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	sep := seps[len(seps)-1]
	rest := seps
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		runes := []rune(text)
		for i := 0; i < len(runes); i += limit {
			end := i + limit
			if end > len(runes) {
				end = len(runes)
			}
			parts = append(parts, string(runes[i:end]))
		}
		return parts
	}

	var out []string
	for i, part := range strings.Split(text, sep) {
		if i > 0 {
			// Keep the separator attached so structure survives.
			part = sep + part
		}
		if len([]rune(part)) > limit {
			out = append(out, splitRecursive(part, limit, rest)...)
		} else if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}

// mergeWithOverlap greedily packs pieces into chunks up to chunkSize,
// prepending up to chunkOverlap runes from the tail of the previous
// chunk to each subsequent one.
func mergeWithOverlap(pieces []string, chunkSize, chunkOverlap int) []string {
	var chunks []string
	var cur strings.Builder
	flush := func() {
		c := strings.TrimSpace(cur.String())
		if c != "" {
			chunks = append(chunks, c)
		}
		cur.Reset()
	}
	for _, p := range pieces {
		if cur.Len() > 0 && len([]rune(cur.String()))+len([]rune(p)) > chunkSize {
			tail := overlapTail(cur.String(), chunkOverlap)
			flush()
			cur.WriteString(tail)
		}
		cur.WriteString(p)
	}
	flush()
	return chunks
}

func overlapTail(s string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= overlap {
		return s
	}
	return string(runes[len(runes)-overlap:])
}
