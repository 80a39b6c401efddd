// Package layout reconstructs reading-order Markdown from positioned text
// boxes. Both the PDF text extractor and the OCR engines produce boxes; the
// same algorithm turns either into lines, paragraphs, and tables.
//
// Coordinates are screen-ordered: X grows right, Y grows down the page.
package layout

import (
	"fmt"
	"sort"
	"strings"
)

// Box is one positioned text run.
type Box struct {
	Text string
	X    float64
	Y    float64
	W    float64
	// H is the run height, typically the font size. Zero falls back to the
	// median height of the page.
	H float64
}

// line is a group of boxes sharing a baseline.
type line struct {
	y     float64
	boxes []Box
	cells []string
}

const (
	// lineProximity groups boxes whose vertical distance stays below this
	// fraction of the median box height.
	lineProximity = 0.6

	// paragraphGap starts a new paragraph when the gap between consecutive
	// lines exceeds this multiple of the median line gap.
	paragraphGap = 1.5

	// cellGap splits a line into table cells when the horizontal gap
	// between runs exceeds this fraction of the median box height.
	cellGap = 0.5
)

// Reconstruct renders boxes as Markdown. Lines carrying two or more cells
// become table rows; consecutive rows form a table with a delimiter row
// under the first. Everything else flows into paragraphs.
func Reconstruct(boxes []Box) string {
	boxes = prune(boxes)
	if len(boxes) == 0 {
		return ""
	}

	medH := medianHeight(boxes)
	lines := groupLines(boxes, medH)
	for i := range lines {
		lines[i].cells = splitCells(lines[i].boxes, medH)
	}

	return render(lines)
}

func prune(boxes []Box) []Box {
	out := boxes[:0:0]
	for _, b := range boxes {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		out = append(out, b)
	}
	return out
}

func medianHeight(boxes []Box) float64 {
	heights := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		if b.H > 0 {
			heights = append(heights, b.H)
		}
	}
	if len(heights) == 0 {
		return 10
	}
	sort.Float64s(heights)
	return heights[len(heights)/2]
}

// groupLines clusters boxes by vertical proximity and orders them top to
// bottom, left to right.
func groupLines(boxes []Box, medH float64) []line {
	sorted := append([]Box(nil), boxes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	threshold := lineProximity * medH
	var lines []line
	for _, b := range sorted {
		if n := len(lines); n > 0 && abs(b.Y-lines[n-1].y) < threshold {
			lines[n-1].boxes = append(lines[n-1].boxes, b)
			continue
		}
		lines = append(lines, line{y: b.Y, boxes: []Box{b}})
	}

	for i := range lines {
		sort.SliceStable(lines[i].boxes, func(a, b int) bool {
			return lines[i].boxes[a].X < lines[i].boxes[b].X
		})
	}
	return lines
}

// splitCells merges adjacent runs and opens a new cell wherever the
// horizontal gap is wide enough to read as a column separator.
func splitCells(boxes []Box, medH float64) []string {
	if len(boxes) == 0 {
		return nil
	}

	threshold := cellGap * medH
	var cells []string
	var cur strings.Builder
	cur.WriteString(boxes[0].Text)
	prevEnd := boxes[0].X + boxes[0].W

	for _, b := range boxes[1:] {
		if b.X-prevEnd > threshold {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		} else if cur.Len() > 0 && !strings.HasSuffix(cur.String(), " ") {
			cur.WriteString(" ")
		}
		cur.WriteString(b.Text)
		if end := b.X + b.W; end > prevEnd {
			prevEnd = end
		}
	}
	cells = append(cells, strings.TrimSpace(cur.String()))
	return cells
}

// render emits paragraphs and tables in document order.
func render(lines []line) string {
	gaps := lineGaps(lines)
	medGap := median(gaps)

	var out strings.Builder
	var para []string
	var table [][]string

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(strings.Join(para, " "))
		para = nil
	}
	flushTable := func() {
		if len(table) == 0 {
			return
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(MarkdownTable(table))
		table = nil
	}

	for i, ln := range lines {
		newBlock := false
		if i > 0 && medGap > 0 && lines[i].y-lines[i-1].y > paragraphGap*medGap {
			newBlock = true
		}

		if len(ln.cells) >= 2 {
			flushPara()
			if newBlock {
				flushTable()
			}
			table = append(table, ln.cells)
			continue
		}

		flushTable()
		if newBlock {
			flushPara()
		}
		para = append(para, ln.cells[0])
	}
	flushPara()
	flushTable()

	return out.String()
}


func lineGaps(lines []line) []float64 {
	var gaps []float64
	for i := 1; i < len(lines); i++ {
		if g := lines[i].y - lines[i-1].y; g > 0 {
			gaps = append(gaps, g)
		}
	}
	return gaps
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// MarkdownTable emits a Markdown table. The first row doubles as the header;
// short rows are padded so every row spans the widest one.
func MarkdownTable(rows [][]string) string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	var out strings.Builder
	for i, r := range rows {
		out.WriteString("|")
		for c := 0; c < width; c++ {
			cell := ""
			if c < len(r) {
				cell = escapeCell(r[c])
			}
			fmt.Fprintf(&out, " %s |", cell)
		}
		out.WriteString("\n")
		if i == 0 {
			out.WriteString("|")
			out.WriteString(strings.Repeat(" --- |", width))
			out.WriteString("\n")
		}
	}
	return strings.TrimRight(out.String(), "\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
