// Package writer renders facts, rules, queries and answers for people and
// for other tools: markdown tables and RuleML XML.
package writer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-chase/datalog"
)

// TableFormatter formats substitutions and atoms as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a cell; 0 disables truncation
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatSubstitutions formats query answers, one row per substitution and
// one column per variable. When vars is empty the columns are the sorted
// union of the substitutions' domains.
func (tf *TableFormatter) FormatSubstitutions(vars []datalog.Term, subs []datalog.Substitution) string {
	if len(vars) == 0 {
		vars = domainOf(subs)
	}
	if len(subs) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", vars)
	}
	if len(vars) == 0 {
		// boolean answer
		return "_true_"
	}

	headers := make([]string, len(vars))
	for i, v := range vars {
		headers[i] = v.String()
	}
	rows := make([][]string, len(subs))
	for i, s := range subs {
		row := make([]string, len(vars))
		for j, v := range vars {
			if t, ok := s.Lookup(v); ok {
				row[j] = tf.formatTerm(t)
			}
		}
		rows[i] = row
	}
	return tf.formatTable(headers, rows)
}

// FormatAtoms formats atoms grouped by predicate, one table per predicate
// in name order
func (tf *TableFormatter) FormatAtoms(atoms []datalog.Atom) string {
	if len(atoms) == 0 {
		return "_No atoms_"
	}

	groups := make(map[datalog.Predicate][]datalog.Atom)
	var preds []datalog.Predicate
	for _, a := range atoms {
		if _, ok := groups[a.Predicate]; !ok {
			preds = append(preds, a.Predicate)
		}
		groups[a.Predicate] = append(groups[a.Predicate], a)
	}
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Name != preds[j].Name {
			return preds[i].Name < preds[j].Name
		}
		return preds[i].Arity < preds[j].Arity
	})

	var b strings.Builder
	for i, p := range preds {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "**%s**\n\n", p)
		headers := make([]string, p.Arity)
		for j := range headers {
			headers[j] = fmt.Sprintf("%d", j+1)
		}
		var rows [][]string
		for _, a := range groups[p] {
			row := make([]string, len(a.Terms))
			for j, t := range a.Terms {
				row[j] = tf.formatTerm(t)
			}
			rows = append(rows, row)
		}
		if p.Arity == 0 {
			b.WriteString("_true_\n")
			continue
		}
		b.WriteString(tf.formatTable(headers, rows))
	}
	return b.String()
}

// formatTable formats headers and rows as a markdown table
func (tf *TableFormatter) formatTable(headers []string, rows [][]string) string {
	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rows)))
	return tableString.String()
}

// formatTerm renders a term, truncated to MaxWidth
func (tf *TableFormatter) formatTerm(t datalog.Term) string {
	s := t.String()
	if t.Kind() == datalog.Literal && t.Datatype() == datalog.XSDString {
		s = t.Identifier()
	}
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		cut := tf.MaxWidth - len(tf.TruncateString)
		if cut < 0 {
			cut = 0
		}
		s = s[:cut] + tf.TruncateString
	}
	return s
}

func domainOf(subs []datalog.Substitution) []datalog.Term {
	seen := make(map[datalog.Term]struct{})
	var vars []datalog.Term
	for _, s := range subs {
		for _, v := range s.Domain() {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				vars = append(vars, v)
			}
		}
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Compare(vars[j]) < 0 })
	return vars
}
