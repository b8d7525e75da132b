package api

import (
	"net/http"

	"github.com/xraph/forge"
)

func (a *API) registerSweepRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("sweep"))

	return g.POST("/sweep", a.runSweep,
		forge.WithSummary("Run expiration sweep"),
		forge.WithDescription("Runs one expiration sweep immediately, outside the scheduler interval."),
		forge.WithOperationID("runSweep"),
		forge.WithResponseSchema(http.StatusOK, "Sweep result", SweepResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) runSweep(ctx forge.Context, _ *RunSweepRequest) (*SweepResponse, error) {
	result, err := a.scheduler.RunSweep(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}

	resp := &SweepResponse{
		Notified: result.Notified,
		Expired:  result.Expired,
		Errors:   result.Errors,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}
