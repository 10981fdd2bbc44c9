// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stack implements the diagram stack (spec.md §4.G): the engine's
// registry of live named diagrams, with scoped mark/restore regions used by
// operations that allocate temporaries and want them swept up together.
package stack

import (
	"fmt"

	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/diagram"
	"github.com/pkg/errors"
)

// Pos marks a position in the stack; RestoreTo(pos) deletes every diagram
// pushed after pos was captured (spec.md §4.G "mark/restore").
type Pos int

// Stack is the ordered collection of named diagrams belonging to one
// arithmetic (Real or Complex); an engine.Engine owns exactly one.
type Stack[T arith.Value] struct {
	diagrams []*diagram.Diagram[T]
	maxDepth int
}

// New returns an empty stack. maxDepth <= 0 means unbounded, matching the
// source engine's CC_MAX_STACK_DEPTH guard but letting callers opt out of
// it for tests.
func New[T arith.Value](maxDepth int) *Stack[T] {
	return &Stack[T]{maxDepth: maxDepth}
}

// Push appends dg to the top of the stack.
func (s *Stack[T]) Push(dg *diagram.Diagram[T]) (*diagram.Diagram[T], error) {
	if s.maxDepth > 0 && len(s.diagrams) >= s.maxDepth {
		return nil, errors.Errorf("stack: overflow: depth limit %d reached pushing diagram %q", s.maxDepth, dg.Name)
	}
	s.diagrams = append(s.diagrams, dg)
	return dg, nil
}

// FindIndex returns the position of the diagram named name, or -1.
func (s *Stack[T]) FindIndex(name string) int {
	for i, dg := range s.diagrams {
		if dg.Name == name {
			return i
		}
	}
	return -1
}

// Find returns the diagram named name and whether it was present.
func (s *Stack[T]) Find(name string) (*diagram.Diagram[T], bool) {
	i := s.FindIndex(name)
	if i < 0 {
		return nil, false
	}
	return s.diagrams[i], true
}

// MustFind is Find's fallible-to-error variant, for callers (e.g. the
// expression evaluator) that treat a missing diagram as a hard error.
func (s *Stack[T]) MustFind(name string) (*diagram.Diagram[T], error) {
	dg, ok := s.Find(name)
	if !ok {
		return nil, errors.Errorf("stack: diagram %q does not exist", name)
	}
	return dg, nil
}

// Replace swaps the diagram named name for dg in place, deleting the old
// one's resources. It reports an error if name is not present.
func (s *Stack[T]) Replace(name string, dg *diagram.Diagram[T]) (*diagram.Diagram[T], error) {
	i := s.FindIndex(name)
	if i < 0 {
		return nil, errors.Errorf("stack: cannot replace %q: not on stack", name)
	}
	old := s.diagrams[i]
	s.diagrams[i] = dg
	if err := old.Delete(); err != nil {
		return nil, errors.Wrapf(err, "stack: replacing %q", name)
	}
	return dg, nil
}

// Erase removes the diagram named name, deletes its resources, and shifts
// later entries down by one. Erasing breaks any Pos captured before it that
// pointed past this entry's original index, exactly as in the source
// engine; callers that need stable positions should prefer RestoreTo.
func (s *Stack[T]) Erase(name string) error {
	i := s.FindIndex(name)
	if i < 0 {
		return nil
	}
	dg := s.diagrams[i]
	s.diagrams = append(s.diagrams[:i], s.diagrams[i+1:]...)
	return dg.Delete()
}

// Rename changes the name of the diagram at name to newName.
func (s *Stack[T]) Rename(name, newName string) error {
	dg, err := s.MustFind(name)
	if err != nil {
		return err
	}
	dg.Rename(newName)
	return nil
}

// AssertExists returns an error if no diagram named name is on the stack.
func (s *Stack[T]) AssertExists(name string) error {
	if s.FindIndex(name) < 0 {
		return errors.Errorf("stack: diagram %q doesn't exist", name)
	}
	return nil
}

// Pos returns the current top-of-stack position, to be paired with a later
// RestoreTo call delimiting a scoped region of temporaries.
func (s *Stack[T]) Pos() Pos { return Pos(len(s.diagrams)) }

// RestoreTo deletes every diagram pushed since pos was captured, the
// region-based cleanup idiom operations use around scratch diagrams
// (spec.md §4.G "mark/restore").
func (s *Stack[T]) RestoreTo(pos Pos) error {
	if int(pos) > len(s.diagrams) {
		return errors.Errorf("stack: RestoreTo: position %d is past current top %d", pos, len(s.diagrams))
	}
	for i := int(pos); i < len(s.diagrams); i++ {
		if err := s.diagrams[i].Delete(); err != nil {
			return err
		}
	}
	s.diagrams = s.diagrams[:pos]
	return nil
}

// Len returns the number of diagrams currently on the stack.
func (s *Stack[T]) Len() int { return len(s.diagrams) }

// At returns the diagram at position i (0 = bottom of stack).
func (s *Stack[T]) At(i int) *diagram.Diagram[T] { return s.diagrams[i] }

// Summary formats the one-line-per-diagram table diagram_stack_print
// writes, given a function to resolve an irrep repno to its display name.
func (s *Stack[T]) Summary(irrepName func(int) string) string {
	out := "\n diagram stack:\n"
	out += " ----------------------------------------------------------------------------------------------\n"
	out += "       <name>   irrep      #sb mem   #sb disk   #sb tot  #unique\n"
	out += " ----------------------------------------------------------------------------------------------\n"
	for i, dg := range s.diagrams {
		mem, disk := dg.MemoryUsed()
		out += fmt.Sprintf(" [%3d] %-12s %-8s %10d %10d %10d %8d/%d\n",
			i, dg.Name, irrepName(dg.Symmetry), mem, disk, mem+disk, dg.NumUnique(), len(dg.Blocks))
	}
	out += " ----------------------------------------------------------------------------------------------\n\n"
	return out
}
