package engine

import (
	"reflect"
	"testing"
)

func TestArgsPerKindDefaults(t *testing.T) {
	cases := []struct {
		name string
		p    Profile
		want []string
	}{
		{"leela default", Profile{Kind: KindLeela}, []string{"--gtp", "--noponder", "--playouts", "1000"}},
		{"leela playouts", Profile{Kind: KindLeela, Playouts: 50}, []string{"--gtp", "--noponder", "--playouts", "50"}},
		{"leelazero default", Profile{Kind: KindLeelaZero, Weights: "lz.gz"}, []string{"--gtp", "--noponder", "--playouts", "2000", "-w", "lz.gz"}},
		{"katago default", Profile{Kind: KindKataGo, Weights: "kata.bin.gz"}, []string{"gtp", "-model", "kata.bin.gz", "-override-config", "maxVisits=1600"}},
		{"katago visits", Profile{Kind: KindKataGo, Playouts: 10}, []string{"gtp", "-override-config", "maxVisits=10"}},
		{"custom kind", Profile{Kind: "gnugo", ExtraArgs: []string{"--mode", "gtp"}}, []string{"--mode", "gtp"}},
		{"custom kind no args", Profile{Kind: "gnugo"}, nil},
	}
	for _, c := range cases {
		got := Args(c.p)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestLeelaZeroUsesOwnWeights(t *testing.T) {
	tbl := Table{
		KindLeela:     {Kind: KindLeela, Weights: "leela-weights"},
		KindLeelaZero: {Kind: KindLeelaZero, Weights: "zero-weights"},
	}
	args := Args(tbl[KindLeelaZero])
	for i, a := range args {
		if a == "-w" {
			if args[i+1] != "zero-weights" {
				t.Fatalf("leelazero weights = %q", args[i+1])
			}
			return
		}
	}
	t.Fatalf("no -w in %v", args)
}

func TestExtraArgsAppended(t *testing.T) {
	got := Args(Profile{Kind: KindLeela, ExtraArgs: []string{"-t", "2"}})
	if got[len(got)-2] != "-t" || got[len(got)-1] != "2" {
		t.Fatalf("extra args missing: %v", got)
	}
}

func TestTableKindsAndClone(t *testing.T) {
	tbl := Table{"b": {Kind: "b", ExtraArgs: []string{"x"}}, "a": {Kind: "a"}}
	if k := tbl.Kinds(); !reflect.DeepEqual(k, []string{"a", "b"}) {
		t.Fatalf("kinds=%v", k)
	}
	c := tbl.Clone()
	c["b"].ExtraArgs[0] = "y"
	if tbl["b"].ExtraArgs[0] != "x" {
		t.Fatalf("clone shares ExtraArgs")
	}
	if !HasBuilder(KindKataGo) || HasBuilder("b") {
		t.Fatalf("HasBuilder mismatch")
	}
}
