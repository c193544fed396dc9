package strategy

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

var buildImageKinds = []artifact.Kind{artifact.KindBuildImage}

// dockerfile accumulates Dockerfile instructions.
type dockerfile struct {
	b strings.Builder
}

func (d *dockerfile) line(format string, args ...any) {
	fmt.Fprintf(&d.b, format, args...)
	d.b.WriteByte('\n')
}

func (d *dockerfile) blank() { d.b.WriteByte('\n') }

func (d *dockerfile) String() string { return d.b.String() }

// execForm renders a command in JSON exec form.
func execForm(cmd []string) string {
	quoted := make([]string, len(cmd))
	for i, c := range cmd {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// singleStageCmd rewrites the runtime command to point at the builder
// output path, for images that never copy the artifact into /app.
func singleStageCmd(tc toolchain) []string {
	if tc.Artifact == "" {
		return tc.Cmd
	}
	target := "/app/" + path.Base(tc.Artifact)
	out := make([]string, len(tc.Cmd))
	for i, c := range tc.Cmd {
		out[i] = strings.ReplaceAll(c, target, tc.Artifact)
	}
	return out
}

// writeBuilderStage emits a cache-friendly builder stage: dependency
// manifests first, then sources.
func writeBuilderStage(d *dockerfile, tc toolchain) {
	d.line("FROM %s AS builder", tc.BuilderImage)
	d.line("WORKDIR /src")
	if len(tc.DepFiles) > 0 {
		d.line("COPY %s ./", strings.Join(tc.DepFiles, " "))
	}
	if tc.Install != "" {
		d.line("RUN %s", tc.Install)
	}
	d.line("COPY . .")
	if tc.Build != "" {
		d.line("RUN mkdir -p /out && %s", tc.Build)
	}
}

// writeRuntimeCopy copies the build output (or the prepared source tree for
// interpreted languages) into the runtime stage.
func writeRuntimeCopy(d *dockerfile, tc toolchain, chown string) {
	flag := ""
	if chown != "" {
		flag = " --chown=" + chown
	}
	if tc.Artifact != "" {
		d.line("COPY --from=builder%s %s /app/", flag, tc.Artifact)
	} else {
		d.line("COPY --from=builder%s /src /app", flag)
	}
	for _, dir := range tc.CarryDirs {
		d.line("COPY --from=builder%s %s %s", flag, dir, dir)
	}
}

func writeEnv(d *dockerfile, tc toolchain) {
	for _, kv := range tc.Env {
		d.line("ENV %s", kv)
	}
}

func imageMetadata(base string, stages int, root bool) map[string]any {
	return map[string]any{
		"base_image":   base,
		"stages":       stages,
		"runs_as_root": root,
	}
}

// StandardImage renders a conventional single-stage Dockerfile on the full
// SDK image.
type StandardImage struct{}

func (s *StandardImage) Name() string           { return "standard" }
func (s *StandardImage) Kinds() []artifact.Kind { return buildImageKinds }

func (s *StandardImage) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Single-stage image on the full language SDK", Deterministic: true}
}

func (s *StandardImage) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	tc := toolchainFor(gctx.Language, gctx.Framework)
	port := gctx.PrimaryPort(tc.DefaultPort)

	var d dockerfile
	d.line("# %s (%s): standard single-stage image", gctx.Name(), languageLabel(gctx))
	d.line("FROM %s", tc.BuilderImage)
	d.line("WORKDIR /app")
	d.line("COPY . .")
	if tc.Install != "" {
		d.line("RUN %s", tc.Install)
	}
	if tc.Build != "" {
		d.line("RUN mkdir -p /out && %s", tc.Build)
	}
	writeEnv(&d, tc)
	d.line("EXPOSE %d", port)
	d.line("CMD %s", execForm(singleStageCmd(tc)))

	return Output{
		Content:  d.String(),
		Features: []string{"single-stage"},
		Metadata: imageMetadata(tc.BuilderImage, 1, true),
	}, nil
}

// MultiStageImage separates the build toolchain from a slim runtime image.
type MultiStageImage struct{}

func (s *MultiStageImage) Name() string           { return "multi-stage" }
func (s *MultiStageImage) Kinds() []artifact.Kind { return buildImageKinds }

func (s *MultiStageImage) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Builder stage plus slim runtime stage with dependency layer caching", Deterministic: true}
}

func (s *MultiStageImage) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	tc := toolchainFor(gctx.Language, gctx.Framework)
	port := gctx.PrimaryPort(tc.DefaultPort)

	var d dockerfile
	d.line("# %s (%s): multi-stage build", gctx.Name(), languageLabel(gctx))
	writeBuilderStage(&d, tc)
	d.blank()
	d.line("FROM %s", tc.RuntimeImage)
	d.line("WORKDIR /app")
	writeRuntimeCopy(&d, tc, "")
	writeEnv(&d, tc)
	d.line("EXPOSE %d", port)
	d.line("CMD %s", execForm(tc.Cmd))

	return Output{
		Content:  d.String(),
		Features: []string{"multi-stage", "layer-caching"},
		Metadata: imageMetadata(tc.RuntimeImage, 2, true),
	}, nil
}

// HardenedImage targets a distroless nonroot runtime with OCI labels.
type HardenedImage struct{}

func (s *HardenedImage) Name() string           { return "security-hardened" }
func (s *HardenedImage) Kinds() []artifact.Kind { return buildImageKinds }

func (s *HardenedImage) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Distroless nonroot runtime, no shell, OCI labels", Deterministic: true}
}

func (s *HardenedImage) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	tc := toolchainFor(gctx.Language, gctx.Framework)
	port := gctx.PrimaryPort(tc.DefaultPort)

	var d dockerfile
	d.line("# %s (%s): hardened distroless image", gctx.Name(), languageLabel(gctx))
	writeBuilderStage(&d, tc)
	d.blank()
	d.line("FROM %s", tc.DistrolessImage)
	d.line("LABEL org.opencontainers.image.title=%q", gctx.Name())
	d.line("LABEL org.opencontainers.image.description=%q", "Hardened runtime image")
	d.line("WORKDIR /app")
	writeRuntimeCopy(&d, tc, "nonroot:nonroot")
	writeEnv(&d, tc)
	d.line("USER nonroot:nonroot")
	d.line("EXPOSE %d", port)
	d.line("ENTRYPOINT %s", execForm(tc.Cmd))

	return Output{
		Content:  d.String(),
		Features: []string{"multi-stage", "layer-caching", "distroless", "non-root", "labels"},
		Metadata: imageMetadata(tc.DistrolessImage, 2, false),
	}, nil
}

// SlimImage minimises image size with an alpine runtime and merged layers.
type SlimImage struct{}

func (s *SlimImage) Name() string           { return "size-optimized" }
func (s *SlimImage) Kinds() []artifact.Kind { return buildImageKinds }

func (s *SlimImage) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Alpine runtime, merged layers, cache cleanup, healthcheck", Deterministic: true}
}

func (s *SlimImage) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	tc := toolchainFor(gctx.Language, gctx.Framework)
	port := gctx.PrimaryPort(tc.DefaultPort)

	var d dockerfile
	d.line("# %s (%s): size-optimized alpine image", gctx.Name(), languageLabel(gctx))
	writeBuilderStage(&d, tc)
	if tc.CacheCleanup != "" {
		d.line("RUN %s", tc.CacheCleanup)
	}
	d.blank()
	d.line("FROM %s", tc.AlpineImage)
	d.line("RUN apk add --no-cache ca-certificates wget && addgroup -S app && adduser -S app -G app")
	d.line("WORKDIR /app")
	writeRuntimeCopy(&d, tc, "app:app")
	writeEnv(&d, tc)
	d.line("USER app")
	d.line("EXPOSE %d", port)
	d.line("HEALTHCHECK --interval=30s --timeout=3s CMD wget -qO- http://localhost:%d/health || exit 1", port)
	d.line("CMD %s", execForm(tc.Cmd))

	return Output{
		Content:  d.String(),
		Features: []string{"multi-stage", "alpine", "non-root", "healthcheck", "minimal-layers"},
		Metadata: imageMetadata(tc.AlpineImage, 2, false),
	}, nil
}

func languageLabel(gctx artifact.Context) string {
	lang := gctx.Language
	if lang == "" {
		lang = "unknown"
	}
	if gctx.Framework != "" {
		return lang + "/" + gctx.Framework
	}
	return lang
}
