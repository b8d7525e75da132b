package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/id"
)

func (a *API) registerAuditRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("audit"))

	if err := g.GET("/grants/:grantId/audit", a.listAuditTrail,
		forge.WithSummary("Grant audit trail"),
		forge.WithDescription("Returns the full audit trail for a grant, oldest first."),
		forge.WithOperationID("listAuditTrail"),
		forge.WithResponseSchema(http.StatusOK, "Audit trail", []*audit.Entry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/audit", a.listAuditEntries,
		forge.WithSummary("Query audit entries"),
		forge.WithDescription("Returns audit entries across grants with optional filters."),
		forge.WithOperationID("listAuditEntries"),
		forge.WithRequestSchema(ListAuditEntriesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Audit entry list", []*audit.Entry{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listAuditTrail(ctx forge.Context, _ *ListAuditTrailRequest) ([]*audit.Entry, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	entries, err := a.ctrl.AuditTrail(ctx.Context(), grantID)
	if err != nil {
		return nil, mapError(err)
	}

	return entries, ctx.JSON(http.StatusOK, entries)
}

func (a *API) listAuditEntries(ctx forge.Context, req *ListAuditEntriesRequest) ([]*audit.Entry, error) {
	filter := &audit.QueryFilter{
		Actor:  req.Actor,
		Action: audit.Action(req.Action),
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}

	if req.GrantID != "" {
		gid, err := id.ParseGrantID(req.GrantID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid grant_id: %v", err))
		}
		filter.GrantID = gid
	}
	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}

	entries, err := a.ctrl.Store().ListAuditEntries(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	return entries, ctx.JSON(http.StatusOK, entries)
}
