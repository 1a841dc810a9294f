package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/zhinst/zhinst-go/pkg/inspect"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/session"
)

// DeviceInfo is one entry of GET /devices.
type DeviceInfo struct {
	Serial     string `json:"serial"`
	Type       string `json:"type"`
	Family     string `json:"family"`
	Name       string `json:"name"`
	Parameters int    `json:"parameters"`
}

// TreeNode is the JSON form of inspect.NodeInfo.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path,omitempty"`
	Kind     string      `json:"kind"`
	Label    string      `json:"label,omitempty"`
	Unit     string      `json:"unit,omitempty"`
	Access   string      `json:"access,omitempty"`
	Value    any         `json:"value,omitempty"`
	Error    string      `json:"error,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// NodeValue is the body of node reads and writes.
type NodeValue struct {
	Path  string `json:"path,omitempty"`
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

func treeNode(info *inspect.NodeInfo) *TreeNode {
	n := &TreeNode{
		Name:  info.Name,
		Path:  info.Path,
		Kind:  info.Kind.String(),
		Label: info.Label,
		Unit:  info.Unit,
		Error: info.Error,
	}
	if info.Kind == model.KindParameter {
		n.Access = inspect.FormatAccess(info.Access)
	}
	if info.HasValue {
		n.Value = model.SnapshotValue(info.Value)
	}
	for _, child := range info.Children {
		n.Children = append(n.Children, treeNode(child))
	}
	return n
}

func (s *Server) device(r *http.Request) (*session.Device, error) {
	return s.session.Devices().Get(r.Context(), chi.URLParam(r, "serial"))
}

// nodePath parses a device-relative path. An empty input names the device
// root. A device prefix, when present, must match serial.
func nodePath(serial, raw string) (*inspect.Path, error) {
	if raw == "" || raw == "/" {
		return &inspect.Path{Device: serial}, nil
	}
	p, err := inspect.ParsePath(raw)
	if err != nil {
		return nil, err
	}
	if p.Device != "" && p.Device != serial {
		return nil, fmt.Errorf("%w: %s does not belong to %s", inspect.ErrInvalidPath, raw, serial)
	}
	return p, nil
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	out := make([]DeviceInfo, 0)
	for _, serial := range s.session.Serials() {
		dev, err := s.session.Devices().Get(r.Context(), serial)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, DeviceInfo{
			Serial:     dev.Serial(),
			Type:       dev.Type(),
			Family:     dev.Family(),
			Name:       dev.Name(),
			Parameters: dev.Stats().Parameters,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	dev, err := s.device(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	path, err := nodePath(dev.Serial(), q.Get("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	values, err := queryBool(r, "values")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	opts := inspect.InspectOptions{Values: values}
	if d := q.Get("depth"); d != "" {
		if opts.Depth, err = strconv.Atoi(d); err != nil || opts.Depth < 0 {
			writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "depth must be a non-negative integer")
			return
		}
	}

	info, err := inspect.NewInspector(dev.Root()).Inspect(r.Context(), path, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treeNode(info))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	dev, err := s.device(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	update, err := queryBool(r, "update")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	path, err := nodePath(dev.Serial(), r.URL.Query().Get("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	node, err := inspect.NewInspector(dev.Root()).Find(path)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch n := node.(type) {
	case *model.Container:
		snap, err := n.Snapshot(r.Context(), update)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case *model.IndexedList:
		snap, err := n.Snapshot(r.Context(), update)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case *model.Parameter:
		writeJSON(w, http.StatusOK, n.Snapshot(r.Context(), update))
	}
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	dev, err := s.device(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	path, err := nodePath(dev.Serial(), chi.URLParam(r, "*"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	insp := inspect.NewInspector(dev.Root())
	p, err := insp.Parameter(path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := p.Get(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NodeValue{
		Path:  p.NodePath(),
		Value: model.SnapshotValue(v),
		Unit:  p.Metadata().Unit,
	})
}

func (s *Server) handleSetNode(w http.ResponseWriter, r *http.Request) {
	dev, err := s.device(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	path, err := nodePath(dev.Serial(), chi.URLParam(r, "*"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := decodeValue(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	insp := inspect.NewInspector(dev.Root())
	p, err := insp.Parameter(path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if str, ok := value.(string); ok && p.Metadata().Domain == model.DomainComplex {
		value = inspect.ParseValue(str)
	}
	ack, err := p.DeepSet(r.Context(), value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ack == nil {
		ack = value
	}
	writeJSON(w, http.StatusOK, NodeValue{
		Path:  p.NodePath(),
		Value: model.SnapshotValue(ack),
		Unit:  p.Metadata().Unit,
	})
}

// decodeValue reads {"value": v}. Whole numbers become int64, other numbers
// float64 and numeric arrays []float64.
func decodeValue(r *http.Request) (any, error) {
	defer r.Body.Close()
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if len(body.Value) == 0 {
		return nil, fmt.Errorf("body has no value")
	}

	vdec := json.NewDecoder(bytes.NewReader(body.Value))
	vdec.UseNumber()
	var v any
	if err := vdec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		out := make([]float64, 0, len(t))
		for _, e := range t {
			n, ok := e.(json.Number)
			if !ok {
				return t
			}
			f, err := n.Float64()
			if err != nil {
				return t
			}
			out = append(out, f)
		}
		return out
	}
	return v
}
