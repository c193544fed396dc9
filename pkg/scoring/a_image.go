package scoring

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

var (
	secretEnv   = regexp.MustCompile(`(?i)\b[A-Z0-9_]*(PASSWORD|SECRET|TOKEN|API_KEY|PRIVATE_KEY)[A-Z0-9_]*\s*[= ]\s*\S+`)
	pipeToShell = regexp.MustCompile(`(?i)(curl|wget)[^|]*\|\s*(ba)?sh`)
	sdkImage    = regexp.MustCompile(`^(golang|rust|maven|gradle|openjdk|node|python):[^-]*$`)
)

func cacheCleanup(args string) bool {
	for _, marker := range []string{"--no-cache", "rm -rf /var/lib/apt/lists", "cache clean", "rm -rf /root/.cache"} {
		if strings.Contains(args, marker) {
			return true
		}
	}
	return false
}

func baseClass(image string) string {
	switch {
	case image == "scratch":
		return "scratch"
	case strings.Contains(image, "distroless"):
		return "distroless"
	case strings.Contains(image, "alpine"):
		return "alpine"
	case strings.Contains(image, "slim"), strings.Contains(image, "-jre"):
		return "slim"
	case sdkImage.MatchString(image):
		return "sdk"
	}
	return "other"
}

// ImageSecurity scores privilege, base image hygiene and secret handling.
type ImageSecurity struct{}

func (a *ImageSecurity) Criterion() string { return "security" }

func (a *ImageSecurity) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc := parseDockerfile(c.Content)
	if !doc.has("FROM") {
		return Assessment{}, fmt.Errorf("no FROM instruction")
	}
	r := start(40)

	if isRootUser(doc.finalUser()) {
		r.penalize(0, "Container runs as root", "Add a USER instruction with an unprivileged account")
	} else {
		r.credit(25, "Runs as a non-root user")
	}

	switch baseClass(doc.finalBase()) {
	case "distroless", "scratch":
		r.credit(15, "Distroless runtime has no shell or package manager")
	case "alpine", "slim":
		r.credit(5, "Minimal runtime base image")
	}

	if unpinned := doc.unpinnedBases(); len(unpinned) > 0 {
		r.penalize(10, fmt.Sprintf("Unpinned base image %s", unpinned[0]), "Pin base images to an explicit version tag or digest")
	} else {
		r.credit(10, "Base images pinned to explicit tags")
	}

	if doc.Stages > 1 {
		r.credit(5, "Build toolchain excluded from the runtime image")
	}

	for _, in := range doc.Instructions {
		switch in.Cmd {
		case "ENV", "ARG":
			if secretEnv.MatchString(in.Args) {
				r.penalize(25, "Credentials baked into the image", "Pass secrets at runtime instead of ENV or ARG")
			}
		case "ADD":
			if strings.Contains(in.Args, "http://") || strings.Contains(in.Args, "https://") {
				r.penalize(10, "Remote ADD fetches unverified content", "Download with a checksum-verified RUN step")
			}
		case "RUN":
			if pipeToShell.MatchString(in.Args) {
				r.penalize(10, "Pipes a remote script into a shell", "Download, verify and then execute install scripts")
			}
		}
	}
	return r.done(), nil
}

// ImagePerformance scores build caching and runtime signal handling.
type ImagePerformance struct{}

func (a *ImagePerformance) Criterion() string { return "performance" }

func (a *ImagePerformance) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc := parseDockerfile(c.Content)
	if !doc.has("FROM") {
		return Assessment{}, fmt.Errorf("no FROM instruction")
	}
	r := start(40)

	if doc.Stages > 1 {
		r.credit(15, "Multi-stage build")
	}

	// Dependency manifests copied and installed before the full source tree
	// keeps the install layer cached across source edits.
	sawManifestCopy, sawInstall, sawFullCopy := false, false, false
	for _, in := range doc.Instructions {
		if in.Stage != 0 {
			break
		}
		switch {
		case in.Cmd == "COPY" && strings.HasPrefix(in.Args, ". "):
			if !sawInstall {
				sawFullCopy = true
			}
		case in.Cmd == "COPY" && !sawFullCopy:
			sawManifestCopy = true
		case in.Cmd == "RUN" && !sawInstall:
			sawInstall = true
		}
	}
	switch {
	case sawManifestCopy && sawInstall && !sawFullCopy:
		r.credit(20, "Dependency layer cached separately from sources")
	case sawFullCopy && sawInstall:
		r.penalize(10, "Sources copied before dependency install", "Copy dependency manifests and install before copying the source tree")
	}

	entry := append(doc.all("ENTRYPOINT"), doc.all("CMD")...)
	if len(entry) > 0 {
		if isExecForm(entry[0].Args) {
			r.credit(10, "Exec-form entrypoint receives signals directly")
		} else {
			r.penalize(5, "Shell-form entrypoint", "Use JSON exec form for CMD and ENTRYPOINT")
		}
	} else {
		r.penalize(5, "No CMD or ENTRYPOINT", "Declare how the container starts")
	}

	for _, in := range doc.all("RUN") {
		if cacheCleanup(in.Args) {
			r.credit(5, "Package manager caches cleaned")
			break
		}
	}
	return r.done(), nil
}

// ImageSize scores the runtime footprint.
type ImageSize struct{}

func (a *ImageSize) Criterion() string { return "size" }

func (a *ImageSize) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc := parseDockerfile(c.Content)
	if !doc.has("FROM") {
		return Assessment{}, fmt.Errorf("no FROM instruction")
	}
	r := start(30)

	switch baseClass(doc.finalBase()) {
	case "scratch":
		r.credit(45, "Scratch runtime")
	case "distroless":
		r.credit(40, "Distroless runtime image")
	case "alpine":
		r.credit(35, "Alpine runtime image")
	case "slim":
		r.credit(25, "Slim runtime image")
	case "sdk":
		r.penalize(0, "Runtime image includes the full SDK", "Run from a slim, alpine or distroless image")
	}

	if doc.Stages > 1 {
		r.credit(15, "Build artifacts copied into a fresh stage")
	}

	runs := 0
	for _, in := range doc.final() {
		if in.Cmd == "RUN" {
			runs++
			if strings.Contains(in.Args, "apt-get install") && !strings.Contains(in.Args, "--no-install-recommends") {
				r.penalize(5, "apt-get installs recommended packages", "Add --no-install-recommends")
			}
		}
	}
	switch {
	case runs <= 1:
		r.credit(10, "Few layers in the runtime stage")
	case runs > 3:
		r.penalize(5, fmt.Sprintf("%d RUN layers in the runtime stage", runs), "Merge RUN instructions")
	}

	for _, in := range doc.all("RUN") {
		if cacheCleanup(in.Args) {
			r.credit(5, "")
			break
		}
	}
	return r.done(), nil
}

// ImageMaintainability scores readability and operability.
type ImageMaintainability struct{}

func (a *ImageMaintainability) Criterion() string { return "maintainability" }

func (a *ImageMaintainability) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc := parseDockerfile(c.Content)
	if !doc.has("FROM") {
		return Assessment{}, fmt.Errorf("no FROM instruction")
	}
	r := start(40)

	if doc.has("LABEL") {
		r.credit(10, "OCI labels describe the image")
	} else {
		r.penalize(0, "", "Add org.opencontainers.image labels")
	}
	if doc.has("WORKDIR") {
		r.credit(10, "Explicit WORKDIR")
	}
	if doc.Comments > 0 {
		r.credit(5, "")
	}
	if doc.has("HEALTHCHECK") {
		r.credit(10, "HEALTHCHECK declared")
	} else {
		r.penalize(0, "", "Declare a HEALTHCHECK")
	}
	if doc.has("EXPOSE") {
		r.credit(10, "Exposed ports documented")
	} else {
		r.penalize(0, "No EXPOSE instruction", "")
	}
	if len(doc.unpinnedBases()) == 0 {
		r.credit(10, "")
	}
	if len(doc.Instructions) > 40 {
		r.penalize(10, "Dockerfile is long", "Split setup into scripts or a shared base image")
	}
	return r.done(), nil
}
