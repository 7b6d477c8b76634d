package processing

import (
	"sort"
	"time"
)

// NodeStatistics tracks rolling execution metrics for one node. The graph
// owns the statistics; nodes never see them.
type NodeStatistics struct {
	NodeID         string        `json:"node_id"`
	NodeType       string        `json:"node_type"`
	ExecutionCount uint64        `json:"execution_count"`
	ErrorCount     uint64        `json:"error_count"`
	LastDuration   time.Duration `json:"last_execution_time_ns"`
	TotalDuration  time.Duration `json:"total_execution_time_ns"`
	Fastest        time.Duration `json:"fastest_execution_time_ns"`
	Slowest        time.Duration `json:"slowest_execution_time_ns"`
	LastExecuted   time.Time     `json:"last_executed,omitzero"`
}

// record folds one execution duration into the statistics.
func (ns *NodeStatistics) record(d time.Duration) {
	ns.ExecutionCount++
	ns.LastDuration = d
	ns.TotalDuration += d
	if ns.ExecutionCount == 1 || d < ns.Fastest {
		ns.Fastest = d
	}
	if d > ns.Slowest {
		ns.Slowest = d
	}
	ns.LastExecuted = time.Now()
}

// Average returns the mean execution duration.
func (ns *NodeStatistics) Average() time.Duration {
	if ns.ExecutionCount == 0 {
		return 0
	}
	return ns.TotalDuration / time.Duration(ns.ExecutionCount)
}

// PerformanceSummary aggregates graph-wide execution metrics in the shape
// consumed by monitoring clients. Field names are part of the wire contract.
type PerformanceSummary struct {
	TotalNodes             int              `json:"total_nodes"`
	ActiveNodes            int              `json:"active_nodes"`
	TotalConnections       int              `json:"total_connections"`
	TotalExecutions        uint64           `json:"total_executions"`
	AverageExecutionTimeMS float64          `json:"average_execution_time_ms"`
	FastestExecutionTimeMS float64          `json:"fastest_execution_time_ms"`
	SlowestExecutionTimeMS float64          `json:"slowest_execution_time_ms"`
	FastestNode            *string          `json:"fastest_node"`
	SlowestNode            *string          `json:"slowest_node"`
	ThroughputFPS          float64          `json:"throughput_fps"`
	EfficiencyPercentage   float64          `json:"efficiency_percentage"`
	NodesByPerformance     []NodeStatistics `json:"nodes_by_performance"`
}

// buildSummary computes the summary from per-node statistics. frameBudget is
// the nominal frame period used for the efficiency figure; zero disables it.
func buildSummary(stats map[string]*NodeStatistics, connections int, frameBudget time.Duration) PerformanceSummary {
	summary := PerformanceSummary{
		TotalNodes:       len(stats),
		TotalConnections: connections,
	}

	nodes := make([]NodeStatistics, 0, len(stats))
	var totalAvg time.Duration
	var fastest, slowest time.Duration
	for _, ns := range stats {
		nodes = append(nodes, *ns)
		if ns.ExecutionCount == 0 {
			continue
		}
		summary.ActiveNodes++
		summary.TotalExecutions += ns.ExecutionCount
		totalAvg += ns.Average()

		if summary.FastestNode == nil || ns.Fastest < fastest {
			id := ns.NodeID
			summary.FastestNode = &id
			fastest = ns.Fastest
		}
		if summary.SlowestNode == nil || ns.Slowest > slowest {
			id := ns.NodeID
			summary.SlowestNode = &id
			slowest = ns.Slowest
		}
	}
	summary.FastestExecutionTimeMS = durationMS(fastest)
	summary.SlowestExecutionTimeMS = durationMS(slowest)

	if summary.ActiveNodes > 0 {
		summary.AverageExecutionTimeMS = durationMS(totalAvg) / float64(summary.ActiveNodes)
	}

	// One graph execution runs every node once, so the per-frame cost is
	// the sum of the per-node averages.
	if totalAvg > 0 {
		summary.ThroughputFPS = float64(time.Second) / float64(totalAvg)
	}
	if frameBudget > 0 && totalAvg > 0 {
		eff := 100 * (1 - float64(totalAvg)/float64(frameBudget))
		if eff < 0 {
			eff = 0
		}
		summary.EfficiencyPercentage = eff
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Average() != nodes[j].Average() {
			return nodes[i].Average() > nodes[j].Average()
		}
		return nodes[i].NodeID < nodes[j].NodeID
	})
	summary.NodesByPerformance = nodes
	return summary
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
