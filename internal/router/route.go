package router

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoRoute is returned when no chain of pools joins two assets.
var ErrNoRoute = errors.New("router: no route")

// FindRoute returns the path with the fewest hops from one asset to another,
// breadth first over registered pools. Where several fee tiers join a pair the lowest
// is used.
func (r *Router) FindRoute(from, to common.Address) (Path, error) {
	if from == to {
		return Path{}, ErrNoRoute
	}
	prev := map[common.Address]common.Address{from: from}
	queue := []common.Address{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		for _, next := range r.pools.Neighbours(cur) {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}
	if _, ok := prev[to]; !ok {
		return Path{}, ErrNoRoute
	}

	tokens := []common.Address{to}
	for at := to; at != from; {
		at = prev[at]
		tokens = append(tokens, at)
	}
	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
	fees := make([]uint32, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		tiers := r.pools.FeeTiers(tokens[i], tokens[i+1])
		if len(tiers) == 0 {
			return Path{}, ErrNoRoute
		}
		fees = append(fees, tiers[0])
	}
	return NewPath(tokens, fees)
}
