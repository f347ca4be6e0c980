package scene

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaJSON = sync.OnceValue(func() []byte {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := r.Reflect(&Scene{})
	b, err := json.Marshal(s)
	if err != nil {
		// the schema is derived from static types; a failure here is a programming error
		panic(err)
	}
	return b
})

// Schema returns the JSON Schema describing the scene the model must emit.
func Schema() []byte {
	b := schemaJSON()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
