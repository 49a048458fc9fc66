package mdk

import (
	"fmt"

	"github.com/google/uuid"
)

type nodeKey struct {
	predicate  Predicate
	occurrence int
}

// BuildState is the per-record state shared by the handlers building one
// record graph. It is owned by a single worker for the lifetime of one
// record and never shared.
type BuildState struct {
	Record       *Entity
	RecordNumber uint64
	Label        Label
	Format       string
	Type         string

	identifier string
	idWrites   int
	nodes      map[nodeKey]*Entity
}

// NewBuildState starts building record number n.
func NewBuildState(n uint64, label Label) *BuildState {
	return &BuildState{
		Record:       NewEntity(),
		RecordNumber: n,
		Label:        label,
		nodes:        make(map[nodeKey]*Entity),
	}
}

// SetIdentifier records the identifier of the record. A later identifying
// field overwrites an earlier one.
func (s *BuildState) SetIdentifier(id string) {
	s.identifier = id
	s.idWrites++
}

// Identifier returns the record identifier, or "" if none was seen.
func (s *BuildState) Identifier() string { return s.identifier }

// IdentifierWrites counts how often SetIdentifier was called. More than one
// write means the record carried several identifying fields.
func (s *BuildState) IdentifierWrites() int { return s.idWrites }

// RecordID names the record for diagnostics: its identifier if known,
// otherwise its number.
func (s *BuildState) RecordID() string {
	if s.identifier != "" {
		return s.identifier
	}
	return fmt.Sprintf("#%d", s.RecordNumber)
}

// Node returns the child entity under predicate for one physical field
// occurrence, creating it on first use. Handlers called for different
// subfields of the same field therefore write into the same node.
func (s *BuildState) Node(p Predicate, occurrence int) (*Entity, error) {
	k := nodeKey{predicate: p, occurrence: occurrence}
	if n, ok := s.nodes[k]; ok {
		return n, nil
	}
	n, err := s.Record.NewChild(p)
	if err != nil {
		return nil, err
	}
	s.nodes[k] = n
	return n, nil
}

// Complete finalizes the graph: the subject is set from the identifier (or
// a blank node id), format and type labels are attached and the graph is
// frozen.
func (s *BuildState) Complete(subjectPrefix string) (*Entity, error) {
	if s.identifier != "" {
		s.Record.Subject = IRI(subjectPrefix + s.identifier)
	} else {
		s.Record.Subject = IRI("_:" + uuid.New().String())
	}
	if s.Format != "" {
		if err := s.Record.AddString("format", s.Format); err != nil {
			return nil, err
		}
	}
	if s.Type != "" {
		if err := s.Record.AddString("type", s.Type); err != nil {
			return nil, err
		}
	}
	s.Record.Freeze()
	return s.Record, nil
}
