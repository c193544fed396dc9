package scoring

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifestDoc is a decoded multi-document Kubernetes manifest.
type manifestDoc struct {
	Objects []map[string]any
}

func parseManifest(content string) (manifestDoc, error) {
	var doc manifestDoc
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var obj map[string]any
		err := dec.Decode(&obj)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return manifestDoc{}, fmt.Errorf("parsing manifest: %w", err)
		}
		if obj == nil {
			continue
		}
		doc.Objects = append(doc.Objects, obj)
	}
	if len(doc.Objects) == 0 {
		return manifestDoc{}, fmt.Errorf("manifest contains no objects")
	}
	return doc, nil
}

var workloadKinds = map[string]bool{
	"Deployment":  true,
	"StatefulSet": true,
	"DaemonSet":   true,
}

func (d manifestDoc) ofKind(kind string) []map[string]any {
	var out []map[string]any
	for _, o := range d.Objects {
		if str(o["kind"]) == kind {
			out = append(out, o)
		}
	}
	return out
}

func (d manifestDoc) hasKind(kind string) bool {
	return len(d.ofKind(kind)) > 0
}

func (d manifestDoc) workloads() []map[string]any {
	var out []map[string]any
	for _, o := range d.Objects {
		if workloadKinds[str(o["kind"])] {
			out = append(out, o)
		}
	}
	return out
}

// podSpecs returns the pod template spec of every workload.
func (d manifestDoc) podSpecs() []map[string]any {
	var out []map[string]any
	for _, w := range d.workloads() {
		if ps := dig(w, "spec", "template", "spec"); ps != nil {
			out = append(out, ps)
		}
	}
	return out
}

// containers returns every container with the pod spec that owns it.
func (d manifestDoc) containers() []containerRef {
	var out []containerRef
	for _, ps := range d.podSpecs() {
		for _, c := range list(ps["containers"]) {
			if cm, ok := c.(map[string]any); ok {
				out = append(out, containerRef{pod: ps, c: cm})
			}
		}
	}
	return out
}

type containerRef struct {
	pod map[string]any
	c   map[string]any
}

// everyContainer reports whether pred holds for at least one container
// and for all of them.
func (d manifestDoc) everyContainer(pred func(containerRef) bool) bool {
	cs := d.containers()
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !pred(c) {
			return false
		}
	}
	return true
}

func dig(m map[string]any, path ...string) map[string]any {
	cur := m
	for _, p := range path {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(v any) (value, set bool) {
	b, ok := v.(bool)
	return b, ok
}

func integer(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func imageTagPinned(image string) bool {
	if strings.Contains(image, "@sha256:") {
		return true
	}
	slash := strings.LastIndex(image, "/")
	_, tag, ok := strings.Cut(image[slash+1:], ":")
	return ok && tag != "" && tag != "latest"
}
