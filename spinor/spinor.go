// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spinor holds the per-spinor attribute table and its tiling into
// spinor blocks (spec.md §4.D). A Registry is built once during setup from
// the host program's spinor metadata and is read-only afterward.
package spinor

import "fmt"

// Spinor is one one-particle function: immutable after Registry setup.
type Spinor struct {
	Irrep  int     // irrep repno
	Energy float64 // orbital energy ε
	Occ    bool    // true: hole (occupied in the reference); false: particle
	Active bool    // valence flag
	T3     bool    // T3-restricted flag
	Block  int     // index into Registry.Blocks
}

// Block is a contiguous run of spinors sharing one irrep, at most TileSize
// spinors (spec.md glossary "Spinor block").
type Block struct {
	Irrep   int
	Indices []int // ascending global spinor indices
}

// Size returns the number of spinors tiled into this block.
func (b Block) Size() int { return len(b.Indices) }

// ActivePolicy selects how spinors are flagged active/valence during setup,
// one of four mutually exclusive schemes (spec.md §4.D).
type ActivePolicy int

const (
	// ActiveByEnergyWindow marks spinors whose energy falls in [Lo, Hi] as active.
	ActiveByEnergyWindow ActivePolicy = iota
	// ActiveByTotalCounts marks the nActHole highest-energy holes and the
	// nActPart lowest-energy particles active, across all irreps.
	ActiveByTotalCounts
	// ActiveByPerIrrepCounts marks a fixed number of active holes/particles
	// within each irrep.
	ActiveByPerIrrepCounts
	// ActiveByExplicitVector takes a caller-supplied per-spinor bool vector.
	ActiveByExplicitVector
)

// ActiveSpec carries the parameters for whichever ActivePolicy is chosen;
// only the fields relevant to the policy need be set.
type ActiveSpec struct {
	Policy ActivePolicy

	EnergyLo, EnergyHi float64

	TotalActiveHoles, TotalActiveParticles int

	PerIrrepActiveHoles, PerIrrepActiveParticles []int // indexed by irrep repno

	Explicit []bool // indexed by spinor number
}

// Registry is the process-wide table of spinor attributes and their tiling
// into spinor blocks.
type Registry struct {
	spinors  []Spinor
	blocks   []Block
	tileSize int

	// filtered lists: lists[qpart][active][t3] -> sorted spinor numbers.
	lists map[listKey][]int
}

type listKey struct {
	hole   bool
	active bool
	t3     bool
}

// New builds a Registry from raw per-spinor irrep/energy/occupation arrays,
// applies the chosen active-space policy, tiles each irrep into blocks of
// at most tileSize spinors, and precomputes the eight filtered sublists
// spb[h|p][0|1][0|1] used by block construction (spec.md §4.D, §4.E).
func New(irrep []int, energy []float64, occ []bool, tileSize int, active ActiveSpec, t3 []bool) (*Registry, error) {
	n := len(irrep)
	if len(energy) != n || len(occ) != n {
		return nil, fmt.Errorf("spinor: irrep/energy/occ length mismatch: %d/%d/%d", len(irrep), len(energy), len(occ))
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("spinor: tileSize must be positive, got %d", tileSize)
	}

	r := &Registry{tileSize: tileSize}
	r.spinors = make([]Spinor, n)
	for i := 0; i < n; i++ {
		r.spinors[i] = Spinor{Irrep: irrep[i], Energy: energy[i], Occ: occ[i]}
	}

	if err := r.applyActive(active); err != nil {
		return nil, err
	}
	if t3 != nil {
		if len(t3) != n {
			return nil, fmt.Errorf("spinor: t3 vector length mismatch: %d vs %d spinors", len(t3), n)
		}
		for i := range r.spinors {
			r.spinors[i].T3 = t3[i]
		}
	}

	r.tile()
	r.buildLists()
	return r, nil
}

func (r *Registry) applyActive(spec ActiveSpec) error {
	n := len(r.spinors)
	switch spec.Policy {
	case ActiveByEnergyWindow:
		for i := range r.spinors {
			e := r.spinors[i].Energy
			r.spinors[i].Active = e >= spec.EnergyLo && e <= spec.EnergyHi
		}
	case ActiveByTotalCounts:
		holes := r.sortedByEnergy(true)
		parts := r.sortedByEnergy(false)
		// Active holes are the highest-energy holes (closest to the Fermi level).
		for i := len(holes) - spec.TotalActiveHoles; i < len(holes); i++ {
			if i >= 0 {
				r.spinors[holes[i]].Active = true
			}
		}
		for i := 0; i < spec.TotalActiveParticles && i < len(parts); i++ {
			r.spinors[parts[i]].Active = true
		}
	case ActiveByPerIrrepCounts:
		byIrrepHole := map[int][]int{}
		byIrrepPart := map[int][]int{}
		for i, s := range r.spinors {
			if s.Occ {
				byIrrepHole[s.Irrep] = append(byIrrepHole[s.Irrep], i)
			} else {
				byIrrepPart[s.Irrep] = append(byIrrepPart[s.Irrep], i)
			}
		}
		for irrep, idxs := range byIrrepHole {
			sortByEnergyDesc(r.spinors, idxs)
			k := 0
			if irrep < len(spec.PerIrrepActiveHoles) {
				k = spec.PerIrrepActiveHoles[irrep]
			}
			for i := 0; i < k && i < len(idxs); i++ {
				r.spinors[idxs[i]].Active = true
			}
		}
		for irrep, idxs := range byIrrepPart {
			sortByEnergyAsc(r.spinors, idxs)
			k := 0
			if irrep < len(spec.PerIrrepActiveParticles) {
				k = spec.PerIrrepActiveParticles[irrep]
			}
			for i := 0; i < k && i < len(idxs); i++ {
				r.spinors[idxs[i]].Active = true
			}
		}
	case ActiveByExplicitVector:
		if len(spec.Explicit) != n {
			return fmt.Errorf("spinor: explicit active vector length mismatch: %d vs %d spinors", len(spec.Explicit), n)
		}
		for i := range r.spinors {
			r.spinors[i].Active = spec.Explicit[i]
		}
	default:
		return fmt.Errorf("spinor: unknown active-space policy %d", spec.Policy)
	}
	return nil
}

func (r *Registry) sortedByEnergy(hole bool) []int {
	var idxs []int
	for i, s := range r.spinors {
		if s.Occ == hole {
			idxs = append(idxs, i)
		}
	}
	sortByEnergyAsc(r.spinors, idxs)
	return idxs
}

func sortByEnergyAsc(spinors []Spinor, idxs []int) {
	for i := 1; i < len(idxs); i++ {
		for j := i; j > 0 && spinors[idxs[j-1]].Energy > spinors[idxs[j]].Energy; j-- {
			idxs[j-1], idxs[j] = idxs[j], idxs[j-1]
		}
	}
}

func sortByEnergyDesc(spinors []Spinor, idxs []int) {
	sortByEnergyAsc(spinors, idxs)
	for i, j := 0, len(idxs)-1; i < j; i, j = i+1, j-1 {
		idxs[i], idxs[j] = idxs[j], idxs[i]
	}
}

// tile partitions spinors into ascending-index runs of at most r.tileSize
// spinors sharing one irrep.
func (r *Registry) tile() {
	byIrrep := map[int][]int{}
	for i, s := range r.spinors {
		byIrrep[s.Irrep] = append(byIrrep[s.Irrep], i)
	}
	for irrep, idxs := range byIrrep {
		for start := 0; start < len(idxs); start += r.tileSize {
			end := start + r.tileSize
			if end > len(idxs) {
				end = len(idxs)
			}
			blk := Block{Irrep: irrep, Indices: append([]int(nil), idxs[start:end]...)}
			bi := len(r.blocks)
			r.blocks = append(r.blocks, blk)
			for _, s := range idxs[start:end] {
				r.spinors[s].Block = bi
			}
		}
	}
}

func (r *Registry) buildLists() {
	r.lists = make(map[listKey][]int, 8)
	for i, s := range r.spinors {
		k := listKey{hole: s.Occ, active: s.Active, t3: s.T3}
		r.lists[k] = append(r.lists[k], i)
	}
}

// NumSpinors returns the total spinor count.
func (r *Registry) NumSpinors() int { return len(r.spinors) }

// NumBlocks returns the number of spinor blocks (tiles).
func (r *Registry) NumBlocks() int { return len(r.blocks) }

// Spinor returns the attributes of global spinor i.
func (r *Registry) Spinor(i int) Spinor { return r.spinors[i] }

// Block returns spinor block b.
func (r *Registry) Block(b int) Block { return r.blocks[b] }

// BlockIrrep returns the irrep shared by every spinor tiled into block b,
// the quantity package block's DPD symmetry filter multiplies together.
func (r *Registry) BlockIrrep(b int) int { return r.blocks[b].Irrep }

// BlockMembers returns the ascending global spinor indices tiled into block
// b; it is the Spinors-interface counterpart of Block(b).Indices.
func (r *Registry) BlockMembers(b int) []int { return r.blocks[b].Indices }

// Energy returns spinor i's orbital energy, the quantity diveps sums into
// the energy denominator.
func (r *Registry) Energy(i int) float64 { return r.spinors[i].Energy }

// SpinorBlock returns the spinor-block index spinor i was tiled into.
func (r *Registry) SpinorBlock(i int) int { return r.spinors[i].Block }

// IsHole reports whether spinor i is occupied in the reference.
func (r *Registry) IsHole(i int) bool { return r.spinors[i].Occ }

// IsParticle reports whether spinor i is unoccupied in the reference.
func (r *Registry) IsParticle(i int) bool { return !r.spinors[i].Occ }

// IsActive reports whether spinor i carries the valence flag.
func (r *Registry) IsActive(i int) bool { return r.spinors[i].Active }

// IsT3Space reports whether spinor i is marked for triples restriction.
func (r *Registry) IsT3Space(i int) bool { return r.spinors[i].T3 }

// Filtered returns the precomputed list spb[hole][active][t3restrict] of
// global spinor numbers matching the three flags, sorted ascending. The
// returned slice must not be mutated by the caller.
func (r *Registry) Filtered(hole, active, t3 bool) []int {
	return r.lists[listKey{hole: hole, active: active, t3: t3}]
}

// FilteredByQpart combines qpart ('h'/'p'), valence (0/1) and t3space (0/1)
// flags the way block construction (spec.md §4.E step 2) addresses them.
func (r *Registry) FilteredByQpart(qpart byte, valence, t3 int) []int {
	return r.Filtered(qpart == 'h', valence != 0, t3 != 0)
}
