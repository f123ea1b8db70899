package licensing

import (
	"context"

	"github.com/ManuelReschke/MetaTask/internal/pkg/metrics/counter"
)

// RecordAPICall counts one API call against a license. Counts are buffered
// in Redis and applied by FlushAPICalls.
func (s *Service) RecordAPICall(ctx context.Context, licenseID uint) error {
	return counter.AddAPICall(ctx, licenseID)
}

// FlushAPICalls applies buffered API call counts to the licenses, restarting
// daily counters whose reset date has passed.
func (s *Service) FlushAPICalls(ctx context.Context) (int, error) {
	return counter.FlushAPICalls(ctx, s.now())
}
