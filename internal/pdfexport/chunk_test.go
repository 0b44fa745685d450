package pdfexport

import "testing"

func card(idx int, title string, width float64) ReportNode {
	return ReportNode{Index: idx, Role: RoleCard, Title: title, Populated: true, Width: width}
}

func TestPlanChunksGreedyRowPacking(t *testing.T) {
	// Four 350-wide cards at standard density: 350+20+350+20+350 = 1090
	// fits, adding the fourth (1090+20+350 = 1460) overflows 1400.
	nodes := []ReportNode{
		card(0, "Research", 350),
		card(1, "Tax", 350),
		card(2, "Sentiment", 350),
		card(3, "Dividend", 350),
	}
	chunks := PlanChunks(nodes, DensityStandard)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Nodes) != 3 || len(chunks[1].Nodes) != 1 {
		t.Fatalf("expected 3+1 split, got %d+%d", len(chunks[0].Nodes), len(chunks[1].Nodes))
	}
	if chunks[1].Nodes[0].Title != "Dividend" {
		t.Fatalf("row 2 should hold the fourth card, got %q", chunks[1].Nodes[0].Title)
	}
}

func TestPlanChunksRowWidthInvariant(t *testing.T) {
	cases := [][]float64{
		{1400},
		{700, 700},
		{500, 500, 500, 500, 500},
		{1390, 20, 20},
		{350, 350, 350, 350, 350, 350, 350},
	}
	for _, widths := range cases {
		var nodes []ReportNode
		for i, w := range widths {
			nodes = append(nodes, card(i, "", w))
		}
		for _, d := range []Density{DensityStandard, DensityHD} {
			for _, ch := range PlanChunks(nodes, d) {
				total := 0.0
				for i, n := range ch.Nodes {
					if i > 0 {
						total += d.CardGap()
					}
					total += n.Width
				}
				if total > PageWidth {
					t.Fatalf("density %v widths %v: row totals %.1f > %.1f", d, widths, total, PageWidth)
				}
			}
		}
	}
}

func TestPlanChunksSkipsUnpopulatedCards(t *testing.T) {
	nodes := []ReportNode{
		card(0, "Research", 400),
		{Index: 1, Role: RoleCard, Title: "Tax", Populated: false, Width: 400},
		card(2, "Sentiment", 400),
	}
	chunks := PlanChunks(nodes, DensityStandard)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 row chunk, got %d", len(chunks))
	}
	got := chunks[0].Titles()
	if len(got) != 2 || got[0] != "Research" || got[1] != "Sentiment" {
		t.Fatalf("unexpected row members: %v", got)
	}

	// Re-planning the same input yields the same chunk count.
	again := PlanChunks(nodes, DensityStandard)
	if len(again) != len(chunks) || len(again[0].Nodes) != len(chunks[0].Nodes) {
		t.Fatal("planner is not idempotent over unpopulated cards")
	}
}

func TestPlanChunksNonCardFlushesRow(t *testing.T) {
	nodes := []ReportNode{
		card(0, "Research", 400),
		{Index: 1, Role: RoleHeader, Populated: true},
		card(2, "Tax", 400),
		card(3, "Sentiment", 400),
	}
	chunks := PlanChunks(nodes, DensityStandard)
	if len(chunks) != 3 {
		t.Fatalf("expected row, header, row; got %d chunks", len(chunks))
	}
	if !chunks[0].IsCardRow() || chunks[1].IsCardRow() || !chunks[2].IsCardRow() {
		t.Fatalf("unexpected chunk kinds: %+v", chunks)
	}
	if len(chunks[2].Nodes) != 2 {
		t.Fatalf("trailing row should hold 2 cards, got %d", len(chunks[2].Nodes))
	}
}

func TestPlanChunksDocumentOrderPreserved(t *testing.T) {
	nodes := []ReportNode{
		{Index: 0, Role: RoleHeader, Populated: true},
		card(1, "A", 800),
		card(2, "B", 800),
		{Index: 3, Role: RoleGeneric, Populated: true},
		card(4, "C", 200),
	}
	chunks := PlanChunks(nodes, DensityStandard)
	var order []int
	for _, ch := range chunks {
		for _, n := range ch.Nodes {
			order = append(order, n.Index)
		}
	}
	for i := 1; i < len(order); i++ {
		if order[i] <= order[i-1] {
			t.Fatalf("document order broken: %v", order)
		}
	}
}

func TestPlanChunksBreakBeforeStartsNewRow(t *testing.T) {
	nodes := []ReportNode{
		card(0, "A", 300),
		card(1, "B", 300),
		{Index: 2, Role: RoleCard, Title: "C", Populated: true, Width: 300, BreakBefore: true},
	}
	chunks := PlanChunks(nodes, DensityStandard)
	if len(chunks) != 2 {
		t.Fatalf("expected forced split into 2 rows, got %d", len(chunks))
	}
	if !chunks[1].BreakBefore {
		t.Fatal("second row should carry the break flag")
	}
}

func TestPlanChunksHDPacksTighter(t *testing.T) {
	// 4x350 fits exactly at HD (gap 0): 1400.
	nodes := []ReportNode{card(0, "A", 350), card(1, "B", 350), card(2, "C", 350), card(3, "D", 350)}
	chunks := PlanChunks(nodes, DensityHD)
	if len(chunks) != 1 || len(chunks[0].Nodes) != 4 {
		t.Fatalf("expected one 4-card row at HD, got %+v", chunks)
	}
}
