package deploy

import (
	"context"

	"github.com/newshub/stevedore/pkg/types"
)

// Pull fetches every image in the release as a unit. Pulls run before
// any container lifecycle action, so a failure aborts the deployment
// with nothing mutated and no rollback needed. Partial pulls are not
// acceptable: the first failure fails the whole release.
func (d *Deployer) Pull(ctx context.Context, rel *types.ReleaseDescriptor) error {
	for _, svc := range rel.Services {
		ref := svc.ImageRef(rel.Tag)
		d.logger.Info().Str("image", ref).Msg("pulling image")
		if err := d.rt.PullImage(ctx, ref); err != nil {
			return &types.FetchError{Image: ref, Err: err}
		}
	}
	return nil
}
