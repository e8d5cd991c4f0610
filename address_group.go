// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (AddressGroup.connect_ordering)
//

package connmgr

import "math/rand/v2"

// Weighted pairs a positive weight with the [Address] it applies to.
type Weighted struct {
	Weight  float64
	Address Address
}

// Tier is an ordered sequence of weighted addresses tried as a unit:
// within a tier, order is a weighted random permutation; across tiers,
// order is strict (tier N+1 is fallback for tier N).
type Tier []Weighted

// AddressGroup is the tiered, weighted endpoint list known for one
// logical name.
//
// An AddressGroup is immutable once built; [AttemptOrder] may be called
// any number of times and concurrently.
type AddressGroup struct {
	name  string
	tiers []Tier
}

// NewAddressGroup builds an [*AddressGroup] from tiers in declared
// priority order. It fails with [InvalidAddressGroup] if every tier is
// empty.
func NewAddressGroup(name string, tiers []Tier) (*AddressGroup, error) {
	nonEmpty := false
	for _, tier := range tiers {
		if len(tier) > 0 {
			nonEmpty = true
			break
		}
	}
	if !nonEmpty {
		return nil, &InvalidAddressGroup{Name: name}
	}
	return &AddressGroup{name: name, tiers: tiers}, nil
}

// AttemptOrder returns a deterministic-per-call attempt ordering:
// addresses within a tier are permuted by priority-weighted randomness
// (each member's sort key is rand.Float64() * weight, sorted ascending),
// and tiers are concatenated in declared order so later tiers act as
// strict fallbacks for earlier ones.
func (g *AddressGroup) AttemptOrder() []Address {
	out := make([]Address, 0, g.size())
	for _, tier := range g.tiers {
		out = append(out, shuffleTier(tier)...)
	}
	return out
}

func (g *AddressGroup) size() int {
	n := 0
	for _, tier := range g.tiers {
		n += len(tier)
	}
	return n
}

type weightedKey struct {
	key     float64
	address Address
}

// shuffleTier assigns each member a sort key of rand.Float64()*weight and
// returns the addresses sorted ascending by that key. Multiplying a
// uniform by weight before sorting yields a weighted permutation in one
// pass: a higher weight tends to produce a larger key, which sorts
// later, without needing a running-total/bisection scheme.
func shuffleTier(tier Tier) []Address {
	keyed := make([]weightedKey, len(tier))
	for i, w := range tier {
		keyed[i] = weightedKey{key: rand.Float64() * w.Weight, address: w.Address}
	}
	insertionSortByKey(keyed)
	out := make([]Address, len(keyed))
	for i, k := range keyed {
		out[i] = k.address
	}
	return out
}

// insertionSortByKey sorts in place ascending by key. Tiers are small
// (typically single digits of addresses), so insertion sort avoids
// pulling in sort.Slice's reflection-based comparator for this hot path.
func insertionSortByKey(s []weightedKey) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].key > s[j].key; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
