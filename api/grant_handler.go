package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
)

func (a *API) registerGrantRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("grants"))

	if err := g.POST("/grants", a.requestGrant,
		forge.WithSummary("Request grant"),
		forge.WithDescription("Requests time-bound access to a resource. Auto-approvable levels activate immediately."),
		forge.WithOperationID("requestGrant"),
		forge.WithRequestSchema(RequestGrantRequest{}),
		forge.WithCreatedResponse(&grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/grants", a.listGrants,
		forge.WithSummary("List grants"),
		forge.WithOperationID("listGrants"),
		forge.WithRequestSchema(ListGrantsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant list", []*grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/grants/:grantId", a.getGrant,
		forge.WithSummary("Get grant"),
		forge.WithOperationID("getGrant"),
		forge.WithResponseSchema(http.StatusOK, "Grant", &grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/grants/:grantId/approve", a.approveGrant,
		forge.WithSummary("Approve grant"),
		forge.WithDescription("Approves a pending grant, provisions access, and starts the expiry clock."),
		forge.WithOperationID("approveGrant"),
		forge.WithRequestSchema(ApproveGrantRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant", &grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/grants/:grantId/reject", a.rejectGrant,
		forge.WithSummary("Reject grant"),
		forge.WithDescription("Denies a pending grant with a reason."),
		forge.WithOperationID("rejectGrant"),
		forge.WithRequestSchema(RejectGrantRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant", &grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/grants/:grantId/renew", a.renewGrant,
		forge.WithSummary("Renew grant"),
		forge.WithDescription("Extends the expiry of an active grant and resets its notification ledger."),
		forge.WithOperationID("renewGrant"),
		forge.WithRequestSchema(RenewGrantRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant", &grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/grants/:grantId/upgrade", a.upgradeGrant,
		forge.WithSummary("Change grant level"),
		forge.WithDescription("Re-provisions an active grant at a different level, subject to policy."),
		forge.WithOperationID("upgradeGrant"),
		forge.WithRequestSchema(UpgradeGrantRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant", &grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/grants/:grantId/revoke", a.revokeGrant,
		forge.WithSummary("Revoke grant"),
		forge.WithDescription("Revokes an open grant and deprovisions any active access."),
		forge.WithOperationID("revokeGrant"),
		forge.WithRequestSchema(RevokeGrantRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant", &grant.Grant{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) requestGrant(ctx forge.Context, req *RequestGrantRequest) (*grant.Grant, error) {
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = steward.Actor(ctx.Context())
	}
	resourceOwner := req.ResourceOwner
	if resourceOwner == "" {
		resourceOwner = steward.DefaultResourceOwner(ctx.Context())
	}

	g, err := a.ctrl.RequestGrant(ctx.Context(), steward.RequestInput{
		Principal:     req.Principal,
		ResourceOwner: resourceOwner,
		ResourceID:    req.ResourceID,
		Level:         grant.Level(req.Level),
		RequestedBy:   requestedBy,
	})
	if err != nil {
		// A provisioning failure still records the grant; the caller
		// retries activation through the approve endpoint.
		if g != nil && errors.Is(err, steward.ErrProvisioning) {
			return g, ctx.JSON(http.StatusCreated, g)
		}
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusCreated, g)
}

func (a *API) getGrant(ctx forge.Context, _ *GetGrantRequest) (*grant.Grant, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	g, err := a.ctrl.GetGrant(ctx.Context(), grantID)
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) listGrants(ctx forge.Context, req *ListGrantsRequest) ([]*grant.Grant, error) {
	if req.Status != "" {
		if _, err := grant.ParseStatus(req.Status); err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid status: %v", err))
		}
	}

	grants, err := a.ctrl.ListGrants(ctx.Context(), &grant.ListFilter{
		Status:        grant.Status(req.Status),
		Principal:     grant.NormalizePrincipal(req.Principal),
		ResourceOwner: req.ResourceOwner,
		ResourceID:    req.ResourceID,
		Limit:         defaultLimit(req.Limit),
		Offset:        req.Offset,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return grants, ctx.JSON(http.StatusOK, grants)
}

func (a *API) approveGrant(ctx forge.Context, req *ApproveGrantRequest) (*grant.Grant, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	approvedBy := req.ApprovedBy
	if approvedBy == "" {
		approvedBy = steward.Actor(ctx.Context())
	}

	var overrideExpiry *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid expires_at: %v", err))
		}
		overrideExpiry = &t
	}

	g, err := a.ctrl.ApproveGrant(ctx.Context(), grantID, approvedBy, overrideExpiry)
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) rejectGrant(ctx forge.Context, req *RejectGrantRequest) (*grant.Grant, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	approvedBy := req.ApprovedBy
	if approvedBy == "" {
		approvedBy = steward.Actor(ctx.Context())
	}

	g, err := a.ctrl.RejectGrant(ctx.Context(), grantID, approvedBy, req.Reason)
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) renewGrant(ctx forge.Context, req *RenewGrantRequest) (*grant.Grant, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	if req.ExpiresAt == "" {
		return nil, forge.BadRequest("expires_at is required")
	}
	newExpiry, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid expires_at: %v", err))
	}

	g, err := a.ctrl.RenewGrant(ctx.Context(), grantID, newExpiry)
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) upgradeGrant(ctx forge.Context, req *UpgradeGrantRequest) (*grant.Grant, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	g, err := a.ctrl.UpgradeGrant(ctx.Context(), grantID, grant.Level(req.Level))
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) revokeGrant(ctx forge.Context, req *RevokeGrantRequest) (*grant.Grant, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	actor := req.Actor
	if actor == "" {
		actor = steward.Actor(ctx.Context())
	}

	g, err := a.ctrl.RevokeGrant(ctx.Context(), grantID, actor)
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}
