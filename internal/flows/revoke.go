package flows

import (
	"context"
	"fmt"

	"github.com/viridial/authcore/internal/autherr"
)

type RevokeDeps struct {
	AllowList RefreshAllowList
}

// RunRevoke removes the allow-list entry for refreshToken. Unknown and
// already revoked tokens succeed.
func RunRevoke(ctx context.Context, refreshToken string, deps RevokeDeps) error {
	if refreshToken == "" {
		return nil
	}
	if err := deps.AllowList.Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("%w: revoke refresh entry: %v", autherr.ErrInternal, err)
	}
	return nil
}
