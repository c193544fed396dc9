package strategy

import "strings"

// toolchain describes how to build and run one language ecosystem.
// Entries are pure data; nothing mutates them after init.
type toolchain struct {
	BuilderImage    string   // full SDK image
	RuntimeImage    string   // slim runtime image
	AlpineImage     string   // alpine runtime image
	DistrolessImage string   // distroless nonroot runtime image
	DepFiles        []string // manifests copied before the source for layer caching
	Install         string   // dependency install command
	Env             []string // KEY=value pairs needed at runtime
	CarryDirs       []string // builder directories the runtime stage needs besides the app
	Build           string   // compile command, empty for interpreted languages
	Artifact        string   // compiled output inside the builder, empty when interpreted
	Cmd             []string
	DefaultPort     int
	CacheCleanup    string // command that removes package manager caches
}

var toolchains = map[string]toolchain{
	"go": {
		BuilderImage:    "golang:1.22",
		RuntimeImage:    "debian:bookworm-slim",
		AlpineImage:     "alpine:3.19",
		DistrolessImage: "gcr.io/distroless/static-debian12:nonroot",
		DepFiles:        []string{"go.mod", "go.sum"},
		Install:         "go mod download",
		Build:           "CGO_ENABLED=0 go build -trimpath -ldflags='-s -w' -o /out/app .",
		Artifact:        "/out/app",
		Cmd:             []string{"/app/app"},
		DefaultPort:     8080,
	},
	"python": {
		BuilderImage:    "python:3.12",
		RuntimeImage:    "python:3.12-slim",
		AlpineImage:     "python:3.12-alpine",
		DistrolessImage: "gcr.io/distroless/python3-debian12:nonroot",
		DepFiles:        []string{"requirements.txt"},
		Install:         "python -m venv /opt/venv && /opt/venv/bin/pip install --no-cache-dir -r requirements.txt",
		Env:             []string{"PATH=/opt/venv/bin:$PATH", "PYTHONUNBUFFERED=1"},
		CarryDirs:       []string{"/opt/venv"},
		Cmd:             []string{"python", "app.py"},
		DefaultPort:     8000,
		CacheCleanup:    "rm -rf /root/.cache/pip",
	},
	"javascript": {
		BuilderImage:    "node:20",
		RuntimeImage:    "node:20-slim",
		AlpineImage:     "node:20-alpine",
		DistrolessImage: "gcr.io/distroless/nodejs20-debian12:nonroot",
		DepFiles:        []string{"package.json", "package-lock.json"},
		Install:         "npm ci --omit=dev",
		Build:           "npm run build --if-present",
		Cmd:             []string{"node", "server.js"},
		DefaultPort:     3000,
		CacheCleanup:    "npm cache clean --force",
	},
	"java": {
		BuilderImage:    "maven:3.9-eclipse-temurin-21",
		RuntimeImage:    "eclipse-temurin:21-jre",
		AlpineImage:     "eclipse-temurin:21-jre-alpine",
		DistrolessImage: "gcr.io/distroless/java21-debian12:nonroot",
		DepFiles:        []string{"pom.xml"},
		Install:         "mvn -q dependency:go-offline",
		Build:           "mvn -q package -DskipTests && cp target/*.jar /out/app.jar",
		Artifact:        "/out/app.jar",
		Cmd:             []string{"java", "-jar", "/app/app.jar"},
		DefaultPort:     8080,
	},
	"rust": {
		BuilderImage:    "rust:1.77",
		RuntimeImage:    "debian:bookworm-slim",
		AlpineImage:     "alpine:3.19",
		DistrolessImage: "gcr.io/distroless/cc-debian12:nonroot",
		DepFiles:        []string{"Cargo.toml", "Cargo.lock"},
		Install:         "cargo fetch",
		Build:           "cargo build --release && cp target/release/app /out/app",
		Artifact:        "/out/app",
		Cmd:             []string{"/app/app"},
		DefaultPort:     8080,
	},
}

var languageAliases = map[string]string{
	"golang":     "go",
	"node":       "javascript",
	"nodejs":     "javascript",
	"typescript": "javascript",
	"js":         "javascript",
	"ts":         "javascript",
	"py":         "python",
	"kotlin":     "java",
}

// genericToolchain is used when the language is unknown.
var genericToolchain = toolchain{
	BuilderImage:    "alpine:3.19",
	RuntimeImage:    "alpine:3.19",
	AlpineImage:     "alpine:3.19",
	DistrolessImage: "gcr.io/distroless/static-debian12:nonroot",
	Cmd:             []string{"./start.sh"},
	DefaultPort:     8080,
}

// toolchainFor resolves the toolchain for a language, applying framework
// specific run commands where one is known.
func toolchainFor(language, framework string) toolchain {
	lang := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	tc, ok := toolchains[lang]
	if !ok {
		return genericToolchain
	}

	switch strings.ToLower(framework) {
	case "flask":
		tc.Cmd = []string{"gunicorn", "-b", "0.0.0.0:5000", "app:app"}
		tc.DefaultPort = 5000
	case "django":
		tc.Cmd = []string{"gunicorn", "-b", "0.0.0.0:8000", "config.wsgi"}
	case "fastapi":
		tc.Cmd = []string{"uvicorn", "main:app", "--host", "0.0.0.0", "--port", "8000"}
	case "express":
		tc.Cmd = []string{"node", "index.js"}
	case "nextjs", "next":
		tc.Cmd = []string{"npm", "start"}
	}
	return tc
}

// knownLanguage reports whether a toolchain entry exists for language.
func knownLanguage(language string) bool {
	lang := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	_, ok := toolchains[lang]
	return ok
}
