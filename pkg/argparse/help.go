package argparse

import (
	"fmt"
	"io"
	"strings"
)

// WriteHelp writes the usage line, the description and the list of
// arguments: positionals first, then options.
func (p *Parser) WriteHelp(w io.Writer) {
	fmt.Fprintf(w, "usage: %s\n", p.usage())
	if p.Description != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(p.Description, "\n"))
	}
	if len(p.positionals) > 0 {
		fmt.Fprintln(w, "\npositional arguments:")
		for _, pos := range p.positionals {
			writeEntry(w, pos.Name, pos.Help)
		}
	}
	fmt.Fprintln(w, "\noptions:")
	for _, o := range p.options {
		if o.Hidden {
			continue
		}
		name := o.display()
		if o.Kind != Bool {
			name += " " + o.metavar()
			if o.Nargs == OneOrMore || o.Nargs == ZeroOrMore {
				name += " ..."
			}
		}
		writeEntry(w, name, o.Help)
	}
}

// UsageLine returns the usage line without the "usage: " prefix.
func (p *Parser) UsageLine() string { return p.usage() }

func (p *Parser) usage() string {
	if p.Usage != "" {
		return strings.ReplaceAll(p.Usage, "%(prog)s", p.Prog)
	}
	var sb strings.Builder
	sb.WriteString(p.Prog)
	for _, o := range p.options {
		if o.Hidden {
			continue
		}
		sb.WriteString(" [")
		if o.Short != 0 {
			sb.WriteString("-" + string(o.Short))
		} else {
			sb.WriteString("--" + o.Long)
		}
		if o.Kind != Bool {
			sb.WriteString(" " + o.metavar())
		}
		sb.WriteString("]")
	}
	for _, pos := range p.positionals {
		switch pos.Nargs {
		case Optional:
			sb.WriteString(" [" + pos.Name + "]")
		case OneOrMore:
			sb.WriteString(" " + pos.Name + " [" + pos.Name + " ...]")
		case ZeroOrMore:
			sb.WriteString(" [" + pos.Name + " ...]")
		default:
			sb.WriteString(" " + pos.Name)
		}
	}
	return sb.String()
}

func (o *Option) metavar() string {
	if o.Metavar != "" {
		return o.Metavar
	}
	return strings.ToUpper(o.dest())
}

func writeEntry(w io.Writer, name, help string) {
	const column = 24
	if len(name)+2 >= column {
		fmt.Fprintf(w, "  %s\n", name)
		if help != "" {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", column), help)
		}
		return
	}
	fmt.Fprintf(w, "  %-*s%s\n", column-2, name, help)
}

// OptionNames returns the long names (with dashes) of all options that are
// not hidden, for completion.
func (p *Parser) OptionNames() []string {
	var names []string
	for _, o := range p.options {
		if !o.Hidden && o.Long != "" {
			names = append(names, "--"+o.Long)
		}
	}
	return names
}
