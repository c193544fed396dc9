package surface

import (
	"encoding/json"
	"io"

	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// JSONRenderer marshals a Result to indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(w io.Writer, result *sampling.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
