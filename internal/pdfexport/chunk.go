package pdfexport

// Chunk is an atomic unit of the report selected for one rasterization
// call: either a single annotated element, or an ordered run of card
// elements packed into one visual row.
type Chunk struct {
	Nodes       []ReportNode
	BreakBefore bool
}

// IsCardRow reports whether the chunk is a packed row of cards. Group
// chunks only ever contain card-role nodes.
func (c Chunk) IsCardRow() bool {
	return len(c.Nodes) > 0 && c.Nodes[0].Role == RoleCard
}

// Titles returns the card titles of a group chunk, used by the sanitizer to
// decide which grid siblings stay visible.
func (c Chunk) Titles() []string {
	titles := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		titles = append(titles, n.Title)
	}
	return titles
}

// PlanChunks partitions the annotated report nodes, in document order, into
// the chunk sequence that will be rasterized.
//
// Card nodes are packed greedily left to right into rows: a card joins the
// current row while the summed widths plus inter-card gaps stay within
// PageWidth, otherwise the row is flushed and a new one starts. Packing is
// strictly greedy in document order; no reordering or bin-packing is
// attempted, so the PDF always reads in the same order as the dashboard.
//
// Unpopulated cards are discarded: an empty, still-loading card never
// consumes report space. Any non-card node flushes the pending row and is
// emitted as its own singleton chunk.
func PlanChunks(nodes []ReportNode, d Density) []Chunk {
	var (
		out      []Chunk
		row      []ReportNode
		rowWidth float64
		rowBreak bool
	)
	flush := func() {
		if len(row) == 0 {
			return
		}
		out = append(out, Chunk{Nodes: row, BreakBefore: rowBreak})
		row = nil
		rowWidth = 0
		rowBreak = false
	}

	for _, n := range nodes {
		if n.Role != RoleCard {
			flush()
			out = append(out, Chunk{Nodes: []ReportNode{n}, BreakBefore: n.BreakBefore})
			continue
		}
		if !n.Populated {
			continue
		}
		if n.BreakBefore {
			// A forced page break also forces a fresh row.
			flush()
		}
		gap := d.CardGap()
		if len(row) == 0 {
			gap = 0
		}
		if len(row) > 0 && rowWidth+gap+n.Width > PageWidth {
			flush()
			gap = 0
		}
		if len(row) == 0 {
			rowBreak = n.BreakBefore
		}
		row = append(row, n)
		rowWidth += gap + n.Width
	}
	flush()
	return out
}
