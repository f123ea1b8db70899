package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// APICallRecorder counts API calls against a license.
type APICallRecorder interface {
	RecordAPICall(ctx context.Context, licenseID uint) error
}

// CountAPICalls records one call against the license named in the license
// header once the handler succeeded. Counting is best-effort.
func CountAPICalls(rec APICallRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
			return err
		}
		raw := strings.TrimSpace(c.Get(usercontext.HeaderLicenseID))
		if raw == "" {
			return nil
		}
		id, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil || id == 0 {
			return nil
		}
		if rerr := rec.RecordAPICall(c.UserContext(), uint(id)); rerr != nil {
			log.Warnf("failed to count api call for license %d: %v", id, rerr)
		}
		return nil
	}
}
