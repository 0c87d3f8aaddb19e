package executor

import (
	stderrors "errors"

	"github.com/latticegql/lattice/pkg/errors"
)

// errorCodeTags maps the internal error taxonomy onto the stable tags
// exposed under extensions.code in the GraphQL response.
var errorCodeTags = map[string]string{
	errors.EConfig:         "CONFIG_ERROR",
	errors.ERemote:         "REMOTE_FAILURE",
	errors.ESchemaMismatch: "SCHEMA_MISMATCH",
	errors.EEval:           "EVAL_ERROR",
	errors.EAuth:           "AUTH_ERROR",
	errors.ECancelled:      "CANCELLED",
	errors.EInvalid:        "INVALID",
	errors.ENotFound:       "NOT_FOUND",
	errors.EInternal:       "INTERNAL_ERROR",
}

// fieldError converts a resolution failure into a located GraphQLError,
// tagging extensions.code with the error's taxonomy entry. Errors raised
// outside the taxonomy (plain fmt errors from a custom Runtime) stay
// untagged rather than being blanket-labelled internal.
func fieldError(err error, path Path) GraphQLError {
	ge := GraphQLError{Message: err.Error(), Path: path}
	var le *errors.LatticeError
	if stderrors.As(err, &le) {
		if tag, ok := errorCodeTags[errors.ErrorCode(err)]; ok {
			ge.Extensions = map[string]any{"code": tag}
		}
	}
	return ge
}
