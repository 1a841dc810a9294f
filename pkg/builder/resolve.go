package builder

import (
	"fmt"
	"strings"

	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

// Resolve finds the parameter that wraps a raw node path such as
// "/DEV1234/SIGOUTS/0/ON" below root. prefix is the serial or module name
// the tree was built with.
func Resolve(root model.Node, prefix, nodePath string) (*model.Parameter, error) {
	rel := nodetree.StripPrefix(nodePath, prefix)
	segs := make([]string, 0, 8)
	for _, s := range nodetree.Normalize(rel) {
		segs = append(segs, s.String())
	}

	if n, err := model.Find(root, segs...); err == nil {
		switch v := n.(type) {
		case *model.Parameter:
			if samePath(v.NodePath(), nodePath) {
				return v, nil
			}
		case *model.Container:
			if p, err := v.Parameter("value"); err == nil && samePath(p.NodePath(), nodePath) {
				return p, nil
			}
		}
	}

	// Collisions rename parameters, so fall back to the node path itself.
	for _, p := range model.Parameters(root) {
		if samePath(p.NodePath(), nodePath) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", model.ErrNodeNotFound, nodePath)
}

func samePath(a, b string) bool {
	return strings.EqualFold(strings.Trim(a, "/"), strings.Trim(b, "/"))
}
