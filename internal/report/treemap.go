package report

import (
	"sort"

	"github.com/newthinker/valscreen/internal/core"
)

// Node is one box of the treemap hierarchy [root, sector, identifier].
// Value is market capitalization; Color is the premium percentage, or
// the capitalization-weighted premium for aggregate nodes.
type Node struct {
	ID         string          `json:"id"`
	Parent     string          `json:"parent"`
	Label      string          `json:"label"`
	Depth      int             `json:"depth"`
	Value      float64         `json:"value"`
	Color      float64         `json:"color"`
	Identifier core.Identifier `json:"identifier,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// Treemap flattens the records into parent-linked nodes: the root first,
// then each sector in name order followed by its leaves by descending size.
func Treemap(t *core.ResultTable, root string) []Node {
	if root == "" && t != nil {
		root = t.Index
	}
	if root == "" {
		root = "index"
	}

	bySector := make(map[string][]core.ValuationRecord)
	if t != nil {
		for _, r := range t.Records {
			bySector[r.Sector] = append(bySector[r.Sector], r)
		}
	}

	sectors := make([]string, 0, len(bySector))
	for s := range bySector {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	rootNode := Node{ID: root, Label: root}
	nodes := []Node{rootNode}

	var rootWeighted float64
	for _, sector := range sectors {
		records := SortRecords(bySector[sector], SortMarketCap, true)
		sectorID := root + "/" + sector

		sectorNode := Node{ID: sectorID, Parent: root, Label: sector, Depth: 1}
		var weighted, plain float64
		leaves := make([]Node, 0, len(records))
		for _, r := range records {
			leaves = append(leaves, Node{
				ID:         sectorID + "/" + string(r.Identifier),
				Parent:     sectorID,
				Label:      string(r.Identifier),
				Depth:      2,
				Value:      r.MarketCap,
				Color:      r.PremiumPct,
				Identifier: r.Identifier,
				Name:       r.Name,
			})
			sectorNode.Value += r.MarketCap
			weighted += r.MarketCap * r.PremiumPct
			plain += r.PremiumPct
		}
		if sectorNode.Value > 0 {
			sectorNode.Color = weighted / sectorNode.Value
		} else if len(records) > 0 {
			sectorNode.Color = plain / float64(len(records))
		}

		nodes[0].Value += sectorNode.Value
		rootWeighted += weighted
		nodes = append(nodes, sectorNode)
		nodes = append(nodes, leaves...)
	}
	if nodes[0].Value > 0 {
		nodes[0].Color = rootWeighted / nodes[0].Value
	}
	return nodes
}
