package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaJSON is the strict JSON Schema for a BatteryProfile document:
// unknown fields are rejected outright. Cross-field invariants (cutoff <
// max, OCV curve shape) are deliberately left to validateDomain in
// profile.go — JSON Schema draft 2020-12 cannot express them cleanly.
const schemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"$id": "https://batteryemulator.internal/schema/battery_profile.json",
	"type": "object",
	"additionalProperties": false,
	"required": [
		"name", "channel", "capacity_ah", "internal_resistance_ohm",
		"current_limit_discharge_a", "current_limit_charge_a",
		"cutoff_voltage", "max_voltage", "rc_time_constant_ms",
		"update_interval_ms", "ocv_curve"
	],
	"properties": {
		"name": { "type": "string", "minLength": 1 },
		"channel": { "type": "integer", "enum": [1, 2, 3] },
		"capacity_ah": { "type": "number", "exclusiveMinimum": 0 },
		"internal_resistance_ohm": { "type": "number", "minimum": 0 },
		"current_limit_discharge_a": { "type": "number", "exclusiveMinimum": 0 },
		"current_limit_charge_a": { "type": "number", "exclusiveMinimum": 0 },
		"cutoff_voltage": { "type": "number", "exclusiveMinimum": 0 },
		"max_voltage": { "type": "number", "exclusiveMinimum": 0 },
		"rc_time_constant_ms": { "type": "number", "minimum": 0 },
		"update_interval_ms": { "type": "number", "exclusiveMinimum": 0 },
		"ocv_curve": {
			"type": "array",
			"minItems": 2,
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["soc", "voltage"],
				"properties": {
					"soc": { "type": "number", "minimum": 0, "maximum": 1 },
					"voltage": { "type": "number", "exclusiveMinimum": 0 }
				}
			}
		}
	}
}`

const schemaResourceID = "battery_profile.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaResourceID, bytes.NewReader([]byte(schemaJSON))); err != nil {
			compileErr = fmt.Errorf("profile: add schema resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaResourceID)
	})
	return compiled, compileErr
}

// validateSchema checks raw against the strict profile schema, returning
// a *ValidationError enumerating every violation found.
func validateSchema(raw []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("profile: schema unavailable: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ValidationError{Violations: []Violation{
			{Field: "<root>", Message: "invalid JSON: " + err.Error()},
		}}
	}

	if err := schema.Validate(doc); err != nil {
		ve := &ValidationError{}
		var schemaErr *jsonschema.ValidationError
		if errors.As(err, &schemaErr) {
			collectSchemaViolations(schemaErr, ve)
		} else {
			ve.add("<root>", err.Error())
		}
		return ve
	}

	return nil
}

func collectSchemaViolations(verr *jsonschema.ValidationError, out *ValidationError) {
	if len(verr.Causes) == 0 {
		field := verr.InstanceLocation
		if field == "" {
			field = "<root>"
		}
		out.add(strings.TrimPrefix(field, "/"), verr.Message)
		return
	}
	for _, cause := range verr.Causes {
		collectSchemaViolations(cause, out)
	}
}
