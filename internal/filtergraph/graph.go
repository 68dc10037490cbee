// Package filtergraph models ffmpeg filter graphs as values and renders them
// in the engine's grammar.
//
// A Graph is an ordered list of chains separated by ";". Each chain reads from
// bracketed input labels, applies ","-joined filters, and writes bracketed
// output labels:
//
//	[0]atrim=start=0.000:end=2.000[a1];[a1][a2]concat=n=2:v=0:a=1
package filtergraph

import (
	"strconv"
	"strings"
)

// Option is one filter argument. An empty Key renders the value positionally.
type Option struct {
	Key   string
	Value string
}

// Filter is a single named filter with ordered options.
type Filter struct {
	Name    string
	Options []Option
}

// New returns a filter with no options.
func New(name string) Filter {
	return Filter{Name: name}
}

// With appends a key=value option.
func (f Filter) With(key, value string) Filter {
	f.Options = append(append([]Option(nil), f.Options...), Option{Key: key, Value: value})
	return f
}

// Positional appends an unnamed option.
func (f Filter) Positional(value string) Filter {
	return f.With("", value)
}

// String renders name=opt:opt.
func (f Filter) String() string {
	if len(f.Options) == 0 {
		return f.Name
	}
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('=')
	for i, opt := range f.Options {
		if i > 0 {
			b.WriteByte(':')
		}
		if opt.Key != "" {
			b.WriteString(opt.Key)
			b.WriteByte('=')
		}
		b.WriteString(opt.Value)
	}
	return b.String()
}

// Chain is a linear run of filters between labelled pads.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

func (c Chain) String() string {
	var b strings.Builder
	writeLabels(&b, c.Inputs)
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	writeLabels(&b, c.Outputs)
	return b.String()
}

// Graph is an ordered set of chains.
type Graph struct {
	Chains []Chain
}

// Add appends a chain and returns the graph for chaining calls.
func (g *Graph) Add(inputs []string, filter Filter, outputs ...string) *Graph {
	g.Chains = append(g.Chains, Chain{Inputs: inputs, Filters: []Filter{filter}, Outputs: outputs})
	return g
}

// Len reports the number of chains.
func (g Graph) Len() int { return len(g.Chains) }

// String serializes the graph for -filter_complex.
func (g Graph) String() string {
	parts := make([]string, 0, len(g.Chains))
	for _, c := range g.Chains {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ";")
}

// Simple renders a filter list for -af/-vf, where no labels are allowed.
func Simple(filters ...Filter) string {
	return Chain{Filters: filters}.String()
}

// Input returns the label for the n-th engine input.
func Input(n int) string {
	return strconv.Itoa(n)
}

// Seconds formats a time value with fixed millisecond precision.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Number formats a value with the shortest exact representation.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeLabels(b *strings.Builder, labels []string) {
	for _, l := range labels {
		b.WriteByte('[')
		b.WriteString(l)
		b.WriteByte(']')
	}
}
