package dag

// ComputeWaves performs topological layering: wave k contains every rule
// whose dependencies are all scheduled in waves < k. Waves are maximal, so
// no rule lands later than its dependencies force, and rules within a wave
// keep their declaration order. The same order drives sequential execution,
// making single-threaded and parallel runs observably equivalent for
// independent rules.
//
// The graph must already be acyclic; Build guarantees that.
func (g *Graph) ComputeWaves() [][]string {
	remaining := make([]int, len(g.nodes))
	for i := range g.nodes {
		remaining[i] = len(g.nodes[i].deps)
	}

	scheduled := 0
	var waves [][]string
	for scheduled < len(g.nodes) {
		var wave []string
		var waveIdx []int
		for i := range g.nodes {
			if remaining[i] == 0 {
				wave = append(wave, g.nodes[i].name)
				waveIdx = append(waveIdx, i)
			}
		}
		if len(wave) == 0 {
			// Unreachable for an acyclic graph.
			panic("dag: no schedulable rules remain in an acyclic graph")
		}

		for _, i := range waveIdx {
			remaining[i] = -1 // scheduled marker
			for _, dep := range g.nodes[i].dependents {
				remaining[dep]--
			}
		}
		scheduled += len(wave)
		waves = append(waves, wave)
	}

	return waves
}
