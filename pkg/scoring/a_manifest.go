package scoring

import (
	"fmt"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

// ManifestSecurity scores pod and container security contexts and network
// isolation.
type ManifestSecurity struct{}

func (a *ManifestSecurity) Criterion() string { return "security" }

func (a *ManifestSecurity) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc, err := parseManifest(c.Content)
	if err != nil {
		return Assessment{}, err
	}
	r := start(30)

	nonRoot := doc.everyContainer(func(ref containerRef) bool {
		if v, ok := boolean(dig(ref.c, "securityContext")["runAsNonRoot"]); ok {
			return v
		}
		v, _ := boolean(dig(ref.pod, "securityContext")["runAsNonRoot"])
		return v
	})
	if nonRoot {
		r.credit(15, "Pods run as non-root")
	} else {
		r.penalize(0, "Pods may run as root", "Set runAsNonRoot in the pod securityContext")
	}

	if doc.everyContainer(func(ref containerRef) bool {
		v, _ := boolean(dig(ref.c, "securityContext")["readOnlyRootFilesystem"])
		return v
	}) {
		r.credit(10, "Read-only root filesystem")
	}

	if doc.everyContainer(func(ref containerRef) bool {
		v, set := boolean(dig(ref.c, "securityContext")["allowPrivilegeEscalation"])
		return set && !v
	}) {
		r.credit(10, "Privilege escalation disabled")
	} else {
		r.penalize(0, "", "Set allowPrivilegeEscalation: false")
	}

	if doc.everyContainer(func(ref containerRef) bool {
		for _, dropped := range list(dig(ref.c, "securityContext", "capabilities")["drop"]) {
			if str(dropped) == "ALL" {
				return true
			}
		}
		return false
	}) {
		r.credit(10, "All Linux capabilities dropped")
	}

	if doc.hasKind("NetworkPolicy") {
		r.credit(10, "NetworkPolicy restricts ingress")
	} else {
		r.penalize(0, "", "Add a NetworkPolicy limiting ingress to the service port")
	}

	for _, ps := range doc.podSpecs() {
		if v, set := boolean(ps["automountServiceAccountToken"]); set && !v {
			r.credit(5, "")
		}
		if dig(ps, "securityContext", "seccompProfile") != nil {
			r.credit(5, "Seccomp profile applied")
		}
		for _, field := range []string{"hostNetwork", "hostPID", "hostIPC"} {
			if v, _ := boolean(ps[field]); v {
				r.penalize(15, fmt.Sprintf("Pod shares the host namespace (%s)", field), "Remove host namespace sharing")
			}
		}
	}

	for _, ref := range doc.containers() {
		if v, _ := boolean(dig(ref.c, "securityContext")["privileged"]); v {
			r.penalize(30, "Privileged container", "Drop privileged mode")
		}
		if !imageTagPinned(str(ref.c["image"])) {
			r.penalize(10, fmt.Sprintf("Mutable image tag %s", str(ref.c["image"])), "Deploy immutable image tags")
		}
	}
	return r.done(), nil
}

// ManifestReliability scores probes, replication and disruption handling.
type ManifestReliability struct{}

func (a *ManifestReliability) Criterion() string { return "reliability" }

func (a *ManifestReliability) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc, err := parseManifest(c.Content)
	if err != nil {
		return Assessment{}, err
	}
	r := start(30)

	if doc.everyContainer(func(ref containerRef) bool { return ref.c["livenessProbe"] != nil }) {
		r.credit(20, "Liveness probes configured")
	} else {
		r.penalize(0, "No liveness probe", "Add a livenessProbe")
	}
	if doc.everyContainer(func(ref containerRef) bool { return ref.c["readinessProbe"] != nil }) {
		r.credit(20, "Readiness probes configured")
	} else {
		r.penalize(0, "No readiness probe", "Add a readinessProbe")
	}

	if deployments := doc.ofKind("Deployment"); len(deployments) > 0 {
		spec := dig(deployments[0], "spec")
		if integer(spec["replicas"]) >= 2 {
			r.credit(15, "Multiple replicas")
		} else {
			r.penalize(0, "Single replica", "Run at least two replicas")
		}
		if str(dig(spec, "strategy")["type"]) == "RollingUpdate" {
			r.credit(5, "Rolling update strategy")
		}
	}

	if doc.hasKind("PodDisruptionBudget") {
		r.credit(10, "PodDisruptionBudget protects availability")
	} else {
		r.penalize(0, "", "Add a PodDisruptionBudget")
	}
	return r.done(), nil
}

// ManifestResources scores resource requests, limits and autoscaling.
type ManifestResources struct{}

func (a *ManifestResources) Criterion() string { return "resource-efficiency" }

func (a *ManifestResources) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc, err := parseManifest(c.Content)
	if err != nil {
		return Assessment{}, err
	}
	r := start(20)

	if doc.everyContainer(func(ref containerRef) bool { return dig(ref.c, "resources", "requests") != nil }) {
		r.credit(25, "Resource requests set")
	} else {
		r.penalize(0, "No resource requests", "Set CPU and memory requests")
	}
	if doc.everyContainer(func(ref containerRef) bool { return dig(ref.c, "resources", "limits") != nil }) {
		r.credit(25, "Resource limits set")
	} else {
		r.penalize(0, "No resource limits", "Set CPU and memory limits")
	}
	if doc.hasKind("HorizontalPodAutoscaler") {
		r.credit(20, "Horizontal autoscaling")
	}
	if doc.everyContainer(func(ref containerRef) bool { return str(ref.c["imagePullPolicy"]) == "IfNotPresent" }) {
		r.credit(5, "")
	}
	return r.done(), nil
}

var deprecatedAPIs = map[string]bool{
	"extensions/v1beta1":  true,
	"apps/v1beta1":        true,
	"apps/v1beta2":        true,
	"policy/v1beta1":      true,
	"autoscaling/v2beta1": true,
	"autoscaling/v2beta2": true,
}

// ManifestBestPractices scores labelling, API versions and service wiring.
type ManifestBestPractices struct{}

func (a *ManifestBestPractices) Criterion() string { return "best-practices" }

func (a *ManifestBestPractices) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc, err := parseManifest(c.Content)
	if err != nil {
		return Assessment{}, err
	}
	r := start(30)

	if len(doc.workloads()) == 0 {
		r.penalize(30, "No workload object", "Define a Deployment")
	}
	if doc.hasKind("Service") {
		r.credit(15, "Service exposes the workload")
	}

	labelled := true
	for _, o := range doc.Objects {
		if str(dig(o, "metadata", "labels")["app.kubernetes.io/name"]) == "" {
			labelled = false
			break
		}
	}
	if labelled {
		r.credit(15, "Recommended app.kubernetes.io labels")
	} else {
		r.penalize(0, "", "Label every object with app.kubernetes.io/name")
	}

	if doc.everyContainer(func(ref containerRef) bool { return imageTagPinned(str(ref.c["image"])) }) {
		r.credit(15, "Images pinned to versioned tags")
	}
	if doc.everyContainer(func(ref containerRef) bool {
		ports := list(ref.c["ports"])
		for _, p := range ports {
			pm, _ := p.(map[string]any)
			if str(pm["name"]) == "" {
				return false
			}
		}
		return len(ports) > 0
	}) {
		r.credit(10, "")
	}

	for _, o := range doc.Objects {
		if api := str(o["apiVersion"]); deprecatedAPIs[api] {
			r.penalize(15, fmt.Sprintf("Deprecated API version %s", api), "Migrate to the stable API group")
		}
	}
	return r.done(), nil
}
