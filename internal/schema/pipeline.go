package schema

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// pipelineSchema is the fixed allow-list every stored query pipeline must
// satisfy: an array of single-key stage objects drawn from the supported
// aggregation stages.
const pipelineSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "minProperties": 1,
    "maxProperties": 1,
    "propertyNames": {
      "enum": [
        "$addFields",
        "$bucket",
        "$count",
        "$facet",
        "$group",
        "$limit",
        "$lookup",
        "$match",
        "$project",
        "$replaceRoot",
        "$replaceWith",
        "$sample",
        "$set",
        "$skip",
        "$sort",
        "$sortByCount",
        "$unset",
        "$unwind"
      ]
    }
  }
}`

var pipelineValidator = mustCompile(pipelineSchema)

func mustCompile(definition string) *Compiled {
	compiled, err := Compile(json.RawMessage(definition))
	if err != nil {
		panic(err)
	}
	return compiled
}

// ValidatePipeline checks a query pipeline against the stage allow-list.
func ValidatePipeline(pipeline []bson.M) error {
	encoded, err := json.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("failed to encode pipeline: %w", err)
	}
	var tree any
	if err := json.Unmarshal(encoded, &tree); err != nil {
		return fmt.Errorf("failed to decode pipeline: %w", err)
	}
	_, err = pipelineValidator.Validate(tree)
	return err
}
