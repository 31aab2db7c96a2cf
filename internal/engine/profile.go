// Package engine holds the engine profile table: which executable to launch
// for an engine kind and how to turn its profile into an argument list.
package engine

import (
	"fmt"
	"sort"
)

// Well-known engine kinds.
const (
	KindLeela     = "leela"
	KindLeelaZero = "leelazero"
	KindKataGo    = "katago"
)

// Default search effort per kind, used when a profile leaves Playouts unset.
const (
	defaultLeelaPlayouts     = 1000
	defaultLeelaZeroPlayouts = 2000
	defaultKataGoVisits      = 1600
)

// Profile describes how to launch one engine kind. Profiles are immutable once
// loaded and fully self-contained: a kind never reads another kind's weights.
type Profile struct {
	Kind     string
	Exec     string
	Weights  string
	Playouts int
	// ExtraArgs are appended after the builder's arguments. Kinds without a
	// registered builder are launched with ExtraArgs only.
	ExtraArgs []string
}

// ArgBuilder turns a profile into the child process argument list.
type ArgBuilder func(p Profile) []string

var builders = map[string]ArgBuilder{
	KindLeela:     leelaArgs,
	KindLeelaZero: leelaZeroArgs,
	KindKataGo:    kataGoArgs,
}

// Args returns the launch arguments for p.
func Args(p Profile) []string {
	var args []string
	if b, ok := builders[p.Kind]; ok {
		args = b(p)
	}
	return append(args, p.ExtraArgs...)
}

// HasBuilder reports whether kind has a dedicated argument builder.
func HasBuilder(kind string) bool {
	_, ok := builders[kind]
	return ok
}

func playouts(p Profile, def int) string {
	if p.Playouts > 0 {
		return fmt.Sprint(p.Playouts)
	}
	return fmt.Sprint(def)
}

func leelaArgs(p Profile) []string {
	return []string{"--gtp", "--noponder", "--playouts", playouts(p, defaultLeelaPlayouts)}
}

func leelaZeroArgs(p Profile) []string {
	args := []string{"--gtp", "--noponder", "--playouts", playouts(p, defaultLeelaZeroPlayouts)}
	if p.Weights != "" {
		args = append(args, "-w", p.Weights)
	}
	return args
}

func kataGoArgs(p Profile) []string {
	args := []string{"gtp"}
	if p.Weights != "" {
		args = append(args, "-model", p.Weights)
	}
	return append(args, "-override-config", "maxVisits="+playouts(p, defaultKataGoVisits))
}

// Table maps engine kind to profile.
type Table map[string]Profile

// Kinds returns the configured kinds in sorted order.
func (t Table) Kinds() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy of t so callers cannot mutate a table after handing it
// to the pool.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, p := range t {
		p.ExtraArgs = append([]string(nil), p.ExtraArgs...)
		out[k] = p
	}
	return out
}
