package router

import (
	"errors"
	"strings"
	"testing"

	"llmnexus/internal/llm"
	"llmnexus/internal/tester"
)

type catalog map[string]llm.ModelDescriptor

func (c catalog) Descriptor(id string) (llm.ModelDescriptor, bool) {
	d, ok := c[id]
	return d, ok
}

type down map[string]bool

func (d down) Available(id string) bool { return !d[id] }

func testCatalog() catalog {
	c := catalog{}
	for _, id := range []string{"coder-a", "coder-b", "coder-c", "fast-a", "cheap-a", "general-a"} {
		c[id] = llm.ModelDescriptor{ID: id, Provider: "fake", Model: id}
	}
	return c
}

func testTable() Table {
	return Table{
		General:      {Candidates: []string{"general-a", "coder-a"}, FanOut: 2},
		Coding:       {Candidates: []string{"coder-a", "coder-b", "coder-c"}, FanOut: 2},
		FastResponse: {Candidates: []string{"fast-a"}, FanOut: 1},
		CostSaving:   {Candidates: []string{"cheap-a", "fast-a"}, FanOut: 1},
	}
}

func ids(ds []llm.ModelDescriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestSelect_FollowsConfiguredOrder(t *testing.T) {
	r, err := New(testTable(), testCatalog(), nil)
	tester.NoErr(t, err)
	for i := 0; i < 10; i++ {
		got, err := r.Select(Coding)
		tester.NoErr(t, err)
		tester.Eq(t, ids(got), []string{"coder-a", "coder-b"})
	}
}

func TestSelect_SkipsUnavailableAndSubstitutes(t *testing.T) {
	health := down{"coder-a": true}
	r, err := New(testTable(), testCatalog(), health)
	tester.NoErr(t, err)

	got, err := r.Select(Coding)
	tester.NoErr(t, err)
	tester.Eq(t, ids(got), []string{"coder-b", "coder-c"})

	health["coder-b"] = true
	got, err = r.Select(Coding)
	tester.NoErr(t, err)
	tester.Eq(t, ids(got), []string{"coder-c"}, "never shrinks below one while a model is up")
}

func TestSelect_ExhaustedNamesObjective(t *testing.T) {
	health := down{"coder-a": true, "coder-b": true, "coder-c": true}
	r, err := New(testTable(), testCatalog(), health)
	tester.NoErr(t, err)

	_, err = r.Select(Coding)
	tester.ErrIs(t, err, ErrRoutingExhausted)
	var ex *ExhaustedError
	tester.True(t, errors.As(err, &ex))
	tester.Eq(t, ex.Objective, Coding)
	tester.True(t, strings.Contains(err.Error(), "Coding"))
}

func TestNew_RejectsInvalidTable(t *testing.T) {
	missing := testTable()
	delete(missing, CostSaving)
	_, err := New(missing, testCatalog(), nil)
	tester.True(t, err != nil, "missing objective")

	unknown := testTable()
	unknown[Coding] = Route{Candidates: []string{"ghost"}, FanOut: 1}
	_, err = New(unknown, testCatalog(), nil)
	tester.True(t, err != nil && strings.Contains(err.Error(), "ghost"), "unregistered candidate")

	zero := testTable()
	zero[General] = Route{Candidates: []string{"general-a"}, FanOut: 0}
	_, err = New(zero, testCatalog(), nil)
	tester.True(t, err != nil, "zero fanout")

	dup := testTable()
	dup[General] = Route{Candidates: []string{"general-a", "general-a"}, FanOut: 1}
	_, err = New(dup, testCatalog(), nil)
	tester.True(t, err != nil, "duplicate candidate")

	extra := testTable()
	extra["poetry"] = Route{Candidates: []string{"general-a"}, FanOut: 1}
	_, err = New(extra, testCatalog(), nil)
	tester.True(t, err != nil, "unknown objective")
}

func TestReload_InvalidKeepsCurrentTable(t *testing.T) {
	r, err := New(testTable(), testCatalog(), nil)
	tester.NoErr(t, err)

	bad := testTable()
	bad[Coding] = Route{Candidates: nil, FanOut: 1}
	tester.True(t, r.Reload(bad) != nil)

	got, err := r.Select(Coding)
	tester.NoErr(t, err)
	tester.Eq(t, ids(got), []string{"coder-a", "coder-b"})

	next := testTable()
	next[Coding] = Route{Candidates: []string{"coder-c"}, FanOut: 1}
	tester.NoErr(t, r.Reload(next))
	got, err = r.Select(Coding)
	tester.NoErr(t, err)
	tester.Eq(t, ids(got), []string{"coder-c"})
}

func TestParseObjective(t *testing.T) {
	cases := map[string]Objective{
		"General":       General,
		"Coding":        Coding,
		"Fast Response": FastResponse,
		"fast-response": FastResponse,
		"COST_SAVING":   CostSaving,
		"Cost Saving":   CostSaving,
	}
	for in, want := range cases {
		got, err := ParseObjective(in)
		tester.NoErr(t, err, in)
		tester.Eq(t, got, want, in)
	}
	_, err := ParseObjective("poetry")
	tester.ErrIs(t, err, ErrUnknownObjective)
	_, err = ParseObjective("  ")
	tester.ErrIs(t, err, ErrUnknownObjective)
	tester.Eq(t, FastResponse.Label(), "Fast Response")
}
