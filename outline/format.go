package outline

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// WriteText renders the forest as a two-space indented bullet list,
// notes on their own lines under the bullet.
func WriteText(w io.Writer, roots []*Item) error {
	bw := bufio.NewWriter(w)
	Walk(roots, func(it *Item, depth int) bool {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(bw, "%s- %s\n", indent, it.Name)
		writeNote(bw, indent+"  ", it.Note)
		return true
	})

	return bw.Flush()
}

// WriteMarkdown renders the forest as a task list; completed nodes
// check their box.
func WriteMarkdown(w io.Writer, roots []*Item) error {
	bw := bufio.NewWriter(w)
	Walk(roots, func(it *Item, depth int) bool {
		box := " "
		if it.Completed() {
			box = "x"
		}
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(bw, "%s- [%s] %s\n", indent, box, it.Name)
		writeNote(bw, indent+"  ", it.Note)
		return true
	})

	return bw.Flush()
}

func writeNote(bw *bufio.Writer, indent, note string) {
	if note == "" {
		return
	}
	for _, line := range strings.Split(note, "\n") {
		fmt.Fprintf(bw, "%s%s\n", indent, line)
	}
}

// ──────────────────────────────────────────────────
// OPML
// ──────────────────────────────────────────────────

type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title string `xml:"title,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

// opmlOutline follows the de facto outliner interchange attributes:
// _note carries the note text, _complete="true" marks checked nodes.
type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Note     string        `xml:"_note,attr,omitempty"`
	Complete string        `xml:"_complete,attr,omitempty"`
	Children []opmlOutline `xml:"outline"`
}

// WriteOPML renders the forest as an OPML 2.0 document.
func WriteOPML(w io.Writer, title string, roots []*Item) error {
	doc := opmlDoc{
		Version: "2.0",
		Head:    opmlHead{Title: title},
		Body:    opmlBody{Outlines: toOutlines(roots)},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("outline: encode opml: %w", err)
	}

	_, err := io.WriteString(w, "\n")

	return err
}

func toOutlines(items []*Item) []opmlOutline {
	out := make([]opmlOutline, 0, len(items))
	for _, it := range items {
		o := opmlOutline{
			Text:     it.Name,
			Note:     it.Note,
			Children: toOutlines(it.Children),
		}
		if it.Completed() {
			o.Complete = "true"
		}
		out = append(out, o)
	}

	return out
}
