package mcp

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/topicnav/internal/errors"
)

// decodeArgs reads the tool arguments into T. Arguments of the wrong JSON type are
// reported as INVALID_REQUEST naming the offending field.
func decodeArgs[T any](req mcp.CallToolRequest) (T, error) {
	var args T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return args, errors.NewInvalidRequest("arguments are not valid JSON")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) && typeErr.Field != "" {
			return args, errors.NewInvalidRequest(fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type.Kind()))
		}
		return args, errors.NewInvalidRequest("arguments do not match the tool schema")
	}
	return args, nil
}
