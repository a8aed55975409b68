package outfmt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table prints rows as aligned columns with a header, or as bare TSV rows
// in plain mode.
type Table struct {
	out   io.Writer
	tw    *tabwriter.Writer
	plain bool
	rows  int
}

func NewTable(ctx context.Context, w io.Writer, header ...string) *Table {
	t := &Table{out: w, plain: IsPlain(ctx)}
	if !t.plain {
		t.tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		t.out = t.tw
		if len(header) > 0 {
			_, _ = fmt.Fprintln(t.out, strings.Join(header, "\t"))
		}
	}
	return t
}

// Row writes one line; values are formatted with %v and tabs inside
// values are replaced so columns stay intact.
func (t *Table) Row(cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = strings.ReplaceAll(fmt.Sprint(c), "\t", " ")
	}
	_, _ = fmt.Fprintln(t.out, strings.Join(parts, "\t"))
	t.rows++
}

func (t *Table) Len() int { return t.rows }

func (t *Table) Flush() error {
	if t.tw == nil {
		return nil
	}
	return t.tw.Flush()
}

// KV is one line of a key/value listing.
type KV struct {
	Key   string
	Value any
}

// WriteKV prints "key<TAB>value" lines, the plain shape of single records.
func WriteKV(w io.Writer, pairs ...KV) error {
	for _, p := range pairs {
		if _, err := fmt.Fprintf(w, "%s\t%v\n", p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}
