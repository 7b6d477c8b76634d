package conf

import (
	"fmt"
)

var validNodeTypes = map[string]bool{
	"input":                    true,
	"gain":                     true,
	"filter":                   true,
	"channel_selector":         true,
	"channel_mixer":            true,
	"differential":             true,
	"record":                   true,
	"peak_finder":              true,
	"concentration_calculator": true,
	"output":                   true,
	"streaming":                true,
	"scripted":                 true,
}

// Validate checks cross-field constraints that viper cannot express.
// Graph structure (cycles, type compatibility) is validated later by the
// processing graph itself; here we only reject configs that cannot name a
// well-formed graph at all.
func Validate(s *Settings) error {
	pa := &s.Photoacoustic
	if pa.InputDevice != "" && pa.InputFile != "" {
		return fmt.Errorf("photoacoustic: input_device and input_file are mutually exclusive")
	}
	if pa.FrameSize <= 0 || pa.FrameSize&(pa.FrameSize-1) != 0 {
		return fmt.Errorf("photoacoustic: frame_size must be a positive power of two, got %d", pa.FrameSize)
	}
	if pa.SampleRate <= 0 {
		return fmt.Errorf("photoacoustic: sample_rate must be positive, got %d", pa.SampleRate)
	}
	if pa.Averages <= 0 {
		return fmt.Errorf("photoacoustic: averages must be positive, got %d", pa.Averages)
	}
	if pa.Precision != 16 && pa.Precision != 32 {
		return fmt.Errorf("photoacoustic: precision must be 16 or 32, got %d", pa.Precision)
	}
	if c := pa.SimulatedSource.Correlation; c < 0 || c > 1 {
		return fmt.Errorf("photoacoustic: simulated_source.correlation must be in [0,1], got %g", c)
	}

	if s.Processing.Enabled {
		if err := validateGraphConfig(&s.Processing.DefaultGraph); err != nil {
			return fmt.Errorf("processing.default_graph: %w", err)
		}
	}

	if s.Modbus.Enabled && (s.Modbus.Port <= 0 || s.Modbus.Port > 65535) {
		return fmt.Errorf("modbus: port out of range: %d", s.Modbus.Port)
	}
	return nil
}

func validateGraphConfig(g *GraphConfig) error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	seen := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("node %d has empty id", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true
		if !validNodeTypes[n.NodeType] {
			return fmt.Errorf("node %s: unknown node_type %q", n.ID, n.NodeType)
		}
	}
	for _, c := range g.Connections {
		if !seen[c.From] {
			return fmt.Errorf("connection references unknown node: %s", c.From)
		}
		if !seen[c.To] {
			return fmt.Errorf("connection references unknown node: %s", c.To)
		}
	}
	if g.OutputNode != "" && !seen[g.OutputNode] {
		return fmt.Errorf("output_node references unknown node: %s", g.OutputNode)
	}
	return nil
}
