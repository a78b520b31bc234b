package schema

import (
	"math"
	"strconv"

	"github.com/ssargent/bitctf/pkg/ctf"
)

// Export converts a decoded tree into plain values that both encoding/json and
// yaml.v3 accept: structs become map[string]any, variants a single-entry map
// keyed by the branch, character arrays strings and other arrays []any.
// Non-finite floats are exported as "NaN", "+Inf" or "-Inf".
func Export(def ctf.Definition) any {
	switch d := def.(type) {
	case nil:
		return nil
	case *ctf.StructDefinition:
		fields := d.Fields()
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			out[f.FieldName()] = Export(f)
		}
		return out
	case *ctf.VariantDefinition:
		if d.Current() == nil {
			return nil
		}
		return map[string]any{d.Branch(): Export(d.Current())}
	case *ctf.ArrayDefinition:
		if d.IsText() {
			return d.Text()
		}
		elems := d.Elements()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = Export(e)
		}
		return out
	case *ctf.FloatDefinition:
		return exportFloat(d.Float64())
	}
	return def.Value()
}

func exportFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 0):
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}
