package scoring

import (
	"strings"
)

// instruction is one parsed Dockerfile instruction.
type instruction struct {
	Cmd   string // upper-cased keyword
	Args  string
	Stage int // 0-based build stage index
}

// dockerfileDoc is a lightweight parse of a Dockerfile: enough structure
// for heuristics, no attempt at full grammar.
type dockerfileDoc struct {
	Instructions []instruction
	Stages       int
	Comments     int
}

func parseDockerfile(content string) dockerfileDoc {
	var doc dockerfileDoc
	var pending strings.Builder

	flush := func() {
		line := strings.TrimSpace(pending.String())
		pending.Reset()
		if line == "" {
			return
		}
		cmd, args, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)
		if cmd == "FROM" {
			doc.Stages++
		}
		stage := max(doc.Stages-1, 0)
		doc.Instructions = append(doc.Instructions, instruction{Cmd: cmd, Args: strings.TrimSpace(args), Stage: stage})
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "#") {
			doc.Comments++
			continue
		}
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSuffix(line, "\\"))
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		flush()
	}
	flush()
	return doc
}

// final returns the instructions of the last stage.
func (d dockerfileDoc) final() []instruction {
	last := max(d.Stages-1, 0)
	var out []instruction
	for _, in := range d.Instructions {
		if in.Stage == last {
			out = append(out, in)
		}
	}
	return out
}

func (d dockerfileDoc) all(cmd string) []instruction {
	var out []instruction
	for _, in := range d.Instructions {
		if in.Cmd == cmd {
			out = append(out, in)
		}
	}
	return out
}

func (d dockerfileDoc) has(cmd string) bool {
	return len(d.all(cmd)) > 0
}

// finalBase returns the image reference of the last FROM.
func (d dockerfileDoc) finalBase() string {
	froms := d.all("FROM")
	if len(froms) == 0 {
		return ""
	}
	image, _, _ := strings.Cut(froms[len(froms)-1].Args, " ")
	return strings.ToLower(image)
}

// finalUser returns the last USER in the final stage, or "" when none.
func (d dockerfileDoc) finalUser() string {
	user := ""
	for _, in := range d.final() {
		if in.Cmd == "USER" {
			user = in.Args
		}
	}
	return user
}

// stageNames returns the names declared with FROM ... AS name.
func (d dockerfileDoc) stageNames() map[string]bool {
	names := map[string]bool{}
	for _, in := range d.all("FROM") {
		fields := strings.Fields(in.Args)
		if len(fields) == 3 && strings.EqualFold(fields[1], "as") {
			names[strings.ToLower(fields[2])] = true
		}
	}
	return names
}

// unpinnedBases returns FROM images with no tag or the latest tag.
// References to earlier build stages are ignored.
func (d dockerfileDoc) unpinnedBases() []string {
	stages := d.stageNames()
	var out []string
	for _, in := range d.all("FROM") {
		image, _, _ := strings.Cut(in.Args, " ")
		lower := strings.ToLower(image)
		if stages[lower] || lower == "scratch" || strings.Contains(lower, "@sha256:") {
			continue
		}
		slash := strings.LastIndex(lower, "/")
		tagged := strings.Contains(lower[slash+1:], ":")
		if !tagged || strings.HasSuffix(lower, ":latest") {
			out = append(out, image)
		}
	}
	return out
}

func isRootUser(user string) bool {
	name, _, _ := strings.Cut(strings.TrimSpace(user), ":")
	return name == "" || name == "root" || name == "0"
}

func isExecForm(args string) bool {
	return strings.HasPrefix(strings.TrimSpace(args), "[")
}
