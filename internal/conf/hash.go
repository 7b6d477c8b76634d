package conf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ProcessingHash returns a stable hash over the sections that drive the
// processing graph. The consumer polls this hash to detect configuration
// changes; two configs differing in any processing-relevant field must hash
// differently, and identical configs must hash identically across processes.
func ProcessingHash(s *Settings) string {
	payload := struct {
		Processing    ProcessingSettings    `json:"processing"`
		Photoacoustic PhotoacousticSettings `json:"photoacoustic"`
	}{
		Processing:    normalizeProcessing(s.Processing),
		Photoacoustic: s.Photoacoustic,
	}
	// encoding/json writes struct fields in declaration order and map keys
	// sorted, which keeps the digest stable.
	data, err := json.Marshal(payload)
	if err != nil {
		// Settings are plain data; marshal can only fail on exotic values
		// smuggled into node parameters. Fall back to a digest of the error
		// text; a change that leaves the same marshal error is not detected.
		data = fmt.Appendf(nil, "unhashable:%v", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeProcessing sorts nodes and connections so that reordering entries
// in the YAML, which does not change graph semantics, does not change the hash.
func normalizeProcessing(p ProcessingSettings) ProcessingSettings {
	g := p.DefaultGraph
	nodes := make([]NodeConfig, len(g.Nodes))
	copy(nodes, g.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	conns := make([]ConnectionConfig, len(g.Connections))
	copy(conns, g.Connections)
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].From != conns[j].From {
			return conns[i].From < conns[j].From
		}
		return conns[i].To < conns[j].To
	})
	p.DefaultGraph = GraphConfig{
		ID:          g.ID,
		Nodes:       nodes,
		Connections: conns,
		OutputNode:  g.OutputNode,
	}
	return p
}
