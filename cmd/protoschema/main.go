package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"simdash/internal/proto"
)

// Protocol documents every message exchanged with the simulation peer.
type Protocol struct {
	GetStep      GetStepMessage      `json:"get_step"`
	Reset        ResetMessage        `json:"reset"`
	SubmitParams SubmitParamsMessage `json:"submit_params"`
	VizState     VizStateMessage     `json:"viz_state"`
	End          EndMessage          `json:"end"`
	ModelParams  ModelParamsMessage  `json:"model_params"`
}

type GetStepMessage struct {
	Type string `json:"type" jsonschema:"required,enum=get_step"`
	Step uint64 `json:"step" jsonschema:"required,minimum=1"`
}

type ResetMessage struct {
	Type string `json:"type" jsonschema:"required,enum=reset"`
}

type SubmitParamsMessage struct {
	Type  string `json:"type" jsonschema:"required,enum=submit_params"`
	Param string `json:"param" jsonschema:"required"`
	Value any    `json:"value" jsonschema:"required,oneof_type=boolean;number"`
}

type VizStateMessage struct {
	Type string `json:"type" jsonschema:"required,enum=viz_state"`
	Data []any  `json:"data" jsonschema:"required"`
}

type EndMessage struct {
	Type string `json:"type" jsonschema:"required,enum=end"`
}

type ModelParamsMessage struct {
	Type   string                     `json:"type" jsonschema:"required,enum=model_params"`
	Params map[string]ParameterSchema `json:"params" jsonschema:"required"`
}

type ParameterSchema struct {
	ParamType   string   `json:"param_type" jsonschema:"required,enum=checkbox,enum=slider,enum=number"`
	Name        string   `json:"name"`
	Value       any      `json:"value" jsonschema:"required,oneof_type=boolean;number"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	Step        *float64 `json:"step,omitempty"`
	Description string   `json:"description,omitempty"`
}

// NodeSlice documents the node visualization element carried in viz_state.
type NodeSlice []proto.NodeState

func main() {
	var outPath, nodesOutPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.StringVar(&nodesOutPath, "nodes-out", "", "optional path for the node slice schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
	if nodesOutPath != "" {
		if err := writeSchema(nodesOutPath, buildNodeSchema()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write node schema: %v\n", err)
			os.Exit(1)
		}
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(Protocol))
	schema.Title = "simdash step protocol"
	schema.Description = "Messages exchanged between the playback synchronizer and a simulation peer"
	return schema
}

func buildNodeSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(NodeSlice))
	schema.Title = "simdash node slice"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
