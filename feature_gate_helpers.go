package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// ErrFeatureDisabled is returned when a gated capability is not enabled for
// the current actor.
var ErrFeatureDisabled = goerrors.New("feature is not enabled for this actor", goerrors.CategoryAuthz).
	WithTextCode("FEATURE_DISABLED").
	WithCode(goerrors.CodeForbidden)

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}

	return goerrors.Wrap(err, goerrors.CategoryAuthz, "Feature gate check failed").
		WithCode(goerrors.CodeForbidden)
}

// RequireFeature checks a feature gate key for the actor resolved in ctx.
// Pair with the adapters/featuregate claims provider so gates see the
// published identity state.
func RequireFeature(ctx context.Context, featureGate gate.FeatureGate, key string) error {
	return guard.Require(ctx, featureGate, key,
		guard.WithDisabledError(ErrFeatureDisabled),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}
