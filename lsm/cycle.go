package lsm

import (
	"fmt"
	"sort"

	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/rng"
)

// cycleCandidate is one discovered simple cycle through the Q2
// obligation multigraph.
type cycleCandidate struct {
	edges        []edge
	participants []ids.AgentID // in cycle order, starting at the canonical minimum
}

func (c cycleCandidate) totalNotional() int64 {
	var total int64
	for _, e := range c.edges {
		total += e.amount
	}
	return total
}

func (c cycleCandidate) settleAmount() int64 {
	m := c.edges[0].amount
	for _, e := range c.edges[1:] {
		if e.amount < m {
			m = e.amount
		}
	}
	return m
}

// cyclePass discovers and settles multilateral cycles one at a time,
// re-scanning Q2 after each settlement, until no settlable cycle
// remains or MaxIterations is reached.
func (e *Engine) cyclePass(currentTick ids.Tick, _ *rng.Stream) error {
	for iter := 0; iter < e.Config.MaxIterations; iter++ {
		edges := e.buildEdges()
		candidates := findSimpleCycles(edges, e.Config.MaxCycleLength)
		if len(candidates) == 0 {
			break
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			ci, cj := candidates[i], candidates[j]
			if len(ci.edges) != len(cj.edges) {
				return len(ci.edges) < len(cj.edges)
			}
			ni, nj := ci.totalNotional(), cj.totalNotional()
			if ni != nj {
				return ni > nj
			}
			for k := 0; k < len(ci.participants) && k < len(cj.participants); k++ {
				if ci.participants[k] != cj.participants[k] {
					return ci.participants[k] < cj.participants[k]
				}
			}
			return len(ci.participants) < len(cj.participants)
		})

		best := candidates[0]
		if err := e.settleCycle(currentTick, best); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) buildEdges() []edge {
	edges := e.edgeArena[:0]
	for _, q2e := range e.Q2.FIFOOrder() {
		edges = append(edges, edge{from: q2e.AgentID, to: q2e.Tx.ReceiverID, amount: q2e.Tx.Remaining(), tx: q2e.Tx})
	}
	e.edgeArena = edges
	return edges
}

// findSimpleCycles enumerates every simple directed cycle of length
// 2..maxLen in the edge multigraph, each reported exactly once by
// canonicalizing on the lexicographically smallest participant as the
// DFS start and only extending to nodes greater than it.
func findSimpleCycles(edges []edge, maxLen int) []cycleCandidate {
	if maxLen < 2 {
		maxLen = 2
	}
	adj := make(map[ids.AgentID][]edge)
	nodeSet := make(map[ids.AgentID]bool)
	for _, e := range edges {
		adj[e.from] = append(adj[e.from], e)
		nodeSet[e.from] = true
		nodeSet[e.to] = true
	}
	starts := make([]ids.AgentID, 0, len(nodeSet))
	for n := range nodeSet {
		starts = append(starts, n)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	var results []cycleCandidate
	for _, start := range starts {
		var path []edge
		visited := map[ids.AgentID]bool{start: true}

		var dfs func(current ids.AgentID)
		dfs = func(current ids.AgentID) {
			for _, e := range adj[current] {
				if e.to == start {
					if len(path)+1 < 2 {
						continue
					}
					full := make([]edge, len(path)+1)
					copy(full, path)
					full[len(path)] = e
					participants := make([]ids.AgentID, 0, len(full))
					participants = append(participants, start)
					for _, fe := range full[:len(full)-1] {
						participants = append(participants, fe.to)
					}
					results = append(results, cycleCandidate{edges: full, participants: participants})
					continue
				}
				if e.to <= start || visited[e.to] {
					continue
				}
				if len(path)+1 >= maxLen {
					continue
				}
				visited[e.to] = true
				path = append(path, e)
				dfs(e.to)
				path = path[:len(path)-1]
				visited[e.to] = false
			}
		}
		dfs(start)
	}
	return results
}

// settleCycle applies a cycle's flow atomically: every edge's
// transaction is settled by the cycle's bottleneck amount; since a
// simple cycle gives every participant exactly one inbound and one
// outbound edge, net balance movement per participant is zero.
func (e *Engine) settleCycle(currentTick ids.Tick, c cycleCandidate) error {
	amount := c.settleAmount()
	net := make(map[ids.AgentID]int64, len(c.participants))
	txIDs := make([]ids.TxID, 0, len(c.edges))

	for _, ed := range c.edges {
		ed.tx.ApplySettlement(amount, currentTick)
		txIDs = append(txIDs, ed.tx.ID)
		net[ed.from] = 0
		net[ed.to] = 0
	}
	for _, ed := range c.edges {
		if ed.tx.IsTerminal() {
			if _, found := e.Q2.Remove(ed.tx.ID); !found {
				return &InvariantError{Reason: fmt.Sprintf("cycle settlement settled tx %s, which is not in Q2", ed.tx.ID)}
			}
			if sa, ok := e.Agents[ed.tx.SenderID]; ok {
				delete(sa.Q2Refs, ed.tx.ID)
			}
		}
	}

	e.emit(event.Event{
		Tick: currentTick, Kind: event.KindLsmCycleSettlement,
		Agents: c.participants, NetPositions: net, TxIDs: txIDs,
	})
	for _, ed := range c.edges {
		e.emit(event.Event{Tick: currentTick, Kind: event.KindSettlement, TxID: ed.tx.ID, Amount: amount})
	}
	return nil
}
