package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Payload stores an arbitrary JSON object inside a jsonb column.
type Payload map[string]any

// Value serializes the payload to JSON. A nil payload is stored as an empty object.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// Scan decodes jsonb into the payload.
func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = Payload{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("payload: unsupported scan type %T", value)
	}
	decoded := Payload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
	}
	*p = decoded
	return nil
}
