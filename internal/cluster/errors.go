package cluster

import "github.com/coderisk/coupler/internal/apperrors"

// clusterErrorf reports a malformed parameter value (ClusterError's
// InvalidParameter variant, spec.md §4.9), folded into apperrors.InputError
// since it is recoverable at the task boundary.
func clusterErrorf(format string, args ...interface{}) error {
	return apperrors.InputErrorf("cluster: "+format, args...)
}

// missingParameter reports that a required parameter was not supplied.
func missingParameter(name string) error {
	return apperrors.InputErrorf("cluster: missing required parameter %q", name)
}
