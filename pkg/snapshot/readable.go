package snapshot

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zhinst/zhinst-go/pkg/model"
)

// maxNameWidth caps the parameter column so one long name does not push
// every value off screen.
const maxNameWidth = 50

// PrintReadable writes the name, value and unit of every parameter at or
// below node, one block per container. Lines longer than maxChars are cut;
// -1 disables cutting. With update set the values are read first, in one
// bulk read when node carries a Cache.
func PrintReadable(ctx context.Context, w io.Writer, node model.Node, update bool, maxChars int) error {
	pr := &printer{w: w, max: maxChars}
	switch n := node.(type) {
	case *model.Container:
		snap, err := n.Snapshot(ctx, update)
		if err != nil {
			return err
		}
		pr.container(n, snap, n.Name())
	case *model.IndexedList:
		snap, err := n.Snapshot(ctx, update)
		if err != nil {
			return err
		}
		pr.list(n, snap, "")
	case *model.Parameter:
		ps := n.Snapshot(ctx, update)
		pr.block(n.Name(), map[string]*model.ParameterSnapshot{n.Name(): ps})
	}
	return pr.err
}

type printer struct {
	w   io.Writer
	max int
	err error
}

func (pr *printer) println(s string) {
	if pr.err != nil {
		return
	}
	_, pr.err = fmt.Fprintln(pr.w, s)
}

func (pr *printer) container(c *model.Container, s *model.Snapshot, name string) {
	if s == nil {
		return
	}
	if len(s.Parameters) > 0 {
		pr.block(name, s.Parameters)
	} else {
		pr.println(name + ":")
		pr.println(fmt.Sprintf("%-*s", pr.max, "\tparameter ") + "value")
		pr.println(strings.Repeat("-", max(pr.max, 0)))
		pr.println("no parameters")
	}

	for _, child := range c.Children() {
		switch v := child.(type) {
		case *model.Container:
			pr.container(v, s.Submodules[v.Name()], name+"_"+v.Name())
		case *model.IndexedList:
			pr.list(v, s.Submodules[v.Name()], name)
		}
	}
}

func (pr *printer) list(l *model.IndexedList, s *model.Snapshot, parent string) {
	if s == nil {
		return
	}
	for i, item := range l.Items() {
		if i >= len(s.Channels) {
			return
		}
		name := item.Name()
		if parent != "" {
			name = parent + "_" + name
		}
		pr.container(item, s.Channels[i], name)
	}
}

func (pr *printer) block(name string, params map[string]*model.ParameterSnapshot) {
	keys := make([]string, 0, len(params))
	width := 0
	for k := range params {
		keys = append(keys, k)
		width = max(width, utf8.RuneCountInString(k))
	}
	sort.Strings(keys)
	width = min(width+1, maxNameWidth)

	pr.println(name + ":")
	pr.println(fmt.Sprintf("\t%-*s: value", width, "parameter"))
	pr.println("\t" + strings.Repeat("-", max(pr.max-8, 0)))
	for _, k := range keys {
		ps := params[k]
		msg := fmt.Sprintf("\t%-*s:\t%s ", width, ps.Name, formatValue(ps.Value))
		if ps.Unit != "" {
			msg += "(" + ps.Unit + ")"
		}
		pr.println(pr.truncate(msg))
	}
}

func (pr *printer) truncate(msg string) string {
	if pr.max < 0 || utf8.RuneCountInString(msg) <= pr.max {
		return msg
	}
	r := []rune(msg)
	return string(r[:max(pr.max-3, 0)]) + "..."
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "Not available"
	case float64:
		return fmt.Sprintf("%.5g", x)
	case float32:
		return fmt.Sprintf("%.5g", x)
	default:
		return fmt.Sprint(v)
	}
}
