package chain

import (
	"context"
	"errors"
	"strings"

	"deepname/internal/mint/models"
)

var failurePatterns = []struct {
	failure  models.Failure
	patterns []string
}{
	{models.FailureUserRejected, []string{"user rejected", "user denied"}},
	{models.FailureInsufficient, []string{"insufficient funds"}},
	{models.FailureNonceConflict, []string{"nonce too low", "replacement transaction underpriced", "already known"}},
	{models.FailureGasEstimation, []string{"estimate gas", "gas required exceeds"}},
	{models.FailureReverted, []string{"execution reverted"}},
}

// ClassifyChainError maps a submit or confirm error onto a failure class.
// Anything unrecognised is treated as the chain being unavailable.
func ClassifyChainError(err error) models.Failure {
	switch {
	case err == nil:
		return models.FailureNone
	case errors.Is(err, context.DeadlineExceeded):
		return models.FailureTimeout
	case errors.Is(err, ErrReverted):
		return models.FailureReverted
	}

	msg := strings.ToLower(err.Error())
	for _, fp := range failurePatterns {
		for _, p := range fp.patterns {
			if strings.Contains(msg, p) {
				return fp.failure
			}
		}
	}
	return models.FailureUnavailable
}
