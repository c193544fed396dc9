package strategy

import (
	"bytes"
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

var manifestKinds = []artifact.Kind{artifact.KindManifest}

// renderDocs encodes Kubernetes objects as a multi-document YAML stream.
func renderDocs(docs ...map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return "", fmt.Errorf("encoding %v: %w", d["kind"], err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("closing manifest stream: %w", err)
	}
	return buf.String(), nil
}

type workload struct {
	name     string
	image    string
	port     int
	replicas int
	labels   map[string]any
}

func newWorkload(gctx artifact.Context, defaultTag string) workload {
	tc := toolchainFor(gctx.Language, gctx.Framework)
	name := gctx.Name()
	image := gctx.Extra["image"]
	if image == "" {
		image = name + ":" + defaultTag
	}
	replicas := 2
	if gctx.Environment == artifact.EnvProduction {
		replicas = 3
	}
	return workload{
		name:     name,
		image:    image,
		port:     gctx.PrimaryPort(tc.DefaultPort),
		replicas: replicas,
		labels:   map[string]any{"app.kubernetes.io/name": name},
	}
}

func (w workload) objectMeta() map[string]any {
	return map[string]any{"name": w.name, "labels": w.labels}
}

func (w workload) deployment(replicas int, container map[string]any, podSpec map[string]any, strategy map[string]any) map[string]any {
	podSpec["containers"] = []any{container}
	spec := map[string]any{
		"replicas": replicas,
		"selector": map[string]any{"matchLabels": w.labels},
		"template": map[string]any{
			"metadata": map[string]any{"labels": w.labels},
			"spec":     podSpec,
		},
	}
	if strategy != nil {
		spec["strategy"] = strategy
	}
	return map[string]any{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata":   w.objectMeta(),
		"spec":       spec,
	}
}

func (w workload) service() map[string]any {
	return map[string]any{
		"apiVersion": "v1",
		"kind":       "Service",
		"metadata":   w.objectMeta(),
		"spec": map[string]any{
			"type":     "ClusterIP",
			"selector": w.labels,
			"ports": []any{map[string]any{
				"name":       "http",
				"port":       80,
				"targetPort": w.port,
			}},
		},
	}
}

func (w workload) baseContainer() map[string]any {
	return map[string]any{
		"name":  w.name,
		"image": w.image,
		"ports": []any{map[string]any{"containerPort": w.port, "name": "http"}},
	}
}

func (w workload) productionContainer() map[string]any {
	c := w.baseContainer()
	c["imagePullPolicy"] = "IfNotPresent"
	c["resources"] = map[string]any{
		"requests": map[string]any{"cpu": "100m", "memory": "128Mi"},
		"limits":   map[string]any{"cpu": "500m", "memory": "512Mi"},
	}
	c["livenessProbe"] = map[string]any{
		"httpGet":             map[string]any{"path": "/health", "port": w.port},
		"initialDelaySeconds": 10,
		"periodSeconds":       10,
	}
	c["readinessProbe"] = map[string]any{
		"httpGet":       map[string]any{"path": "/ready", "port": w.port},
		"periodSeconds": 5,
	}
	return c
}

func rollingUpdate() map[string]any {
	return map[string]any{
		"type":          "RollingUpdate",
		"rollingUpdate": map[string]any{"maxUnavailable": 0, "maxSurge": 1},
	}
}

func (w workload) autoscaler(minReplicas int) map[string]any {
	return map[string]any{
		"apiVersion": "autoscaling/v2",
		"kind":       "HorizontalPodAutoscaler",
		"metadata":   w.objectMeta(),
		"spec": map[string]any{
			"scaleTargetRef": map[string]any{"apiVersion": "apps/v1", "kind": "Deployment", "name": w.name},
			"minReplicas":    minReplicas,
			"maxReplicas":    10,
			"metrics": []any{map[string]any{
				"type": "Resource",
				"resource": map[string]any{
					"name":   "cpu",
					"target": map[string]any{"type": "Utilization", "averageUtilization": 70},
				},
			}},
		},
	}
}

func (w workload) disruptionBudget() map[string]any {
	return map[string]any{
		"apiVersion": "policy/v1",
		"kind":       "PodDisruptionBudget",
		"metadata":   w.objectMeta(),
		"spec": map[string]any{
			"minAvailable": 1,
			"selector":     map[string]any{"matchLabels": w.labels},
		},
	}
}

func (w workload) networkPolicy() map[string]any {
	return map[string]any{
		"apiVersion": "networking.k8s.io/v1",
		"kind":       "NetworkPolicy",
		"metadata":   w.objectMeta(),
		"spec": map[string]any{
			"podSelector": map[string]any{"matchLabels": w.labels},
			"policyTypes": []any{"Ingress"},
			"ingress": []any{map[string]any{
				"ports": []any{map[string]any{"protocol": "TCP", "port": w.port}},
			}},
		},
	}
}

// MinimalManifest emits a bare Deployment and Service.
type MinimalManifest struct{}

func (s *MinimalManifest) Name() string           { return "minimal" }
func (s *MinimalManifest) Kinds() []artifact.Kind { return manifestKinds }

func (s *MinimalManifest) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Single-replica Deployment and ClusterIP Service", Deterministic: true}
}

func (s *MinimalManifest) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	w := newWorkload(gctx, "latest")
	content, err := renderDocs(
		w.deployment(1, w.baseContainer(), map[string]any{}, nil),
		w.service(),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Content:  content,
		Features: []string{"service"},
		Metadata: map[string]any{"replicas": 1, "image": w.image, "objects": 2},
	}, nil
}

// ProductionManifest adds probes, resource bounds, autoscaling and a
// disruption budget.
type ProductionManifest struct{}

func (s *ProductionManifest) Name() string           { return "production" }
func (s *ProductionManifest) Kinds() []artifact.Kind { return manifestKinds }

func (s *ProductionManifest) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Probes, resource limits, rolling updates, HPA and PDB", Deterministic: true}
}

func (s *ProductionManifest) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	w := newWorkload(gctx, tagFor(gctx))
	content, err := renderDocs(
		w.deployment(w.replicas, w.productionContainer(), map[string]any{}, rollingUpdate()),
		w.service(),
		w.autoscaler(w.replicas),
		w.disruptionBudget(),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Content:  content,
		Features: []string{"service", "probes", "resource-limits", "autoscaling", "pdb", "rolling-update"},
		Metadata: map[string]any{"replicas": w.replicas, "image": w.image, "objects": 4},
	}, nil
}

// HardenedManifest is the production layout plus pod and container security
// contexts and a NetworkPolicy.
type HardenedManifest struct{}

func (s *HardenedManifest) Name() string           { return "hardened" }
func (s *HardenedManifest) Kinds() []artifact.Kind { return manifestKinds }

func (s *HardenedManifest) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Production layout with restricted security contexts and NetworkPolicy", Deterministic: true}
}

func (s *HardenedManifest) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	w := newWorkload(gctx, tagFor(gctx))

	container := w.productionContainer()
	container["securityContext"] = map[string]any{
		"allowPrivilegeEscalation": false,
		"readOnlyRootFilesystem":   true,
		"capabilities":             map[string]any{"drop": []any{"ALL"}},
	}
	container["volumeMounts"] = []any{map[string]any{"name": "tmp", "mountPath": "/tmp"}}

	podSpec := map[string]any{
		"automountServiceAccountToken": false,
		"securityContext": map[string]any{
			"runAsNonRoot":   true,
			"runAsUser":      10001,
			"fsGroup":        10001,
			"seccompProfile": map[string]any{"type": "RuntimeDefault"},
		},
		"volumes": []any{map[string]any{"name": "tmp", "emptyDir": map[string]any{}}},
	}

	content, err := renderDocs(
		w.deployment(w.replicas, container, podSpec, rollingUpdate()),
		w.service(),
		w.autoscaler(w.replicas),
		w.disruptionBudget(),
		w.networkPolicy(),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Content:  content,
		Features: []string{"service", "probes", "resource-limits", "autoscaling", "pdb", "rolling-update", "non-root", "read-only-fs", "network-policy"},
		Metadata: map[string]any{"replicas": w.replicas, "image": w.image, "objects": 5},
	}, nil
}

func tagFor(gctx artifact.Context) string {
	if v := gctx.Extra["version"]; v != "" {
		return v
	}
	return "1.0.0"
}
