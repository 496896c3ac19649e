//go:build !gcp

package artifacts

import (
	"context"
	"errors"
)

func newGCSStore(_ context.Context) (Store, error) {
	return nil, errors.New("GCS storage is not enabled in this build (use -tags gcp)")
}
