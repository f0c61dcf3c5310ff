package httpapi

import (
	"errors"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// chatRequestSchema accepts the OpenAI chat request subset served here.
// Unknown fields are allowed so stock clients keep working.
const chatRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["messages"],
  "properties": {
    "model": {"type": "string"},
    "messages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {"type": "string", "enum": ["system", "user", "assistant"]},
          "content": {"type": "string"}
        }
      }
    },
    "max_tokens": {"type": "integer", "minimum": 0},
    "temperature": {"type": "number", "minimum": 0, "maximum": 2},
    "top_p": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "seed": {"type": "integer"},
    "stream": {"type": "boolean"},
    "stream_options": {
      "type": ["object", "null"],
      "properties": {"include_usage": {"type": "boolean"}}
    }
  }
}`

var chatSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(chatRequestSchema))
	if err != nil {
		panic("httpapi: chat request schema: " + err.Error())
	}
	return s
}()

var errInvalidJSON = errors.New("invalid JSON body")

// validateChatRequest checks body against the chat request schema and joins
// every violation into one message.
func validateChatRequest(body []byte) error {
	res, err := chatSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errInvalidJSON
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
