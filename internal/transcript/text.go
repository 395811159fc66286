package transcript

import (
	"encoding/xml"
	"io"
	"strings"
)

// mixedText extracts the character data of an inner-XML fragment, skipping
// the content of recordedTime elements and returning their time attributes.
func mixedText(inner string) (string, []string) {
	if strings.TrimSpace(inner) == "" {
		return "", nil
	}

	dec := xml.NewDecoder(strings.NewReader("<x>" + inner + "</x>"))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var (
		sb        strings.Builder
		times     []string
		skipDepth int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever was readable; a broken inline fragment should not
			// drop the whole speech.
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "recordedTime" {
				if v := attr(t, "time"); v != "" {
					times = append(times, v)
				}
				skipDepth++
				continue
			}
			if skipDepth > 0 {
				skipDepth++
			}
		case xml.EndElement:
			if skipDepth > 0 {
				skipDepth--
			}
		case xml.CharData:
			if skipDepth == 0 {
				sb.Write(t)
			}
		}
	}
	return collapseSpace(sb.String()), times
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CountWords sums whitespace-delimited tokens across paragraphs.
func CountWords(paragraphs []string) int {
	n := 0
	for _, p := range paragraphs {
		n += len(strings.Fields(p))
	}
	return n
}
