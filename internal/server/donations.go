package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/donara/internal/donation/identifier"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
)

const contextDonationIDKey = "donation_id"

type resolveDonationRequest struct {
	Identifiers []string `json:"identifiers"`
}

func (s *Server) ResolveDonation(c *gin.Context) {
	var req resolveDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	raws := make([]string, 0, len(req.Identifiers))
	for _, raw := range req.Identifiers {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			raws = append(raws, trimmed)
		}
	}
	if len(raws) == 0 {
		AbortWithError(c, newValidationError("identifiers", "missing_identifier", "at least one identifier is required"))
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorDonor, "")
	resp, err := s.donationSvc.ResolveRaw(ctx, raws...)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextDonationIDKey, resp.Donation.ID())
	status := http.StatusOK
	if !resp.AlreadyExisted {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) GetDonation(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("id"))
	ids, err := identifier.Merge(raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.donationSvc.Fetch(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextDonationIDKey, resp.ID())
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResendReceipt(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorDonor, "")
	resp, err := s.donationSvc.ResendReceipt(ctx, raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextDonationIDKey, resp.Donation.ID())
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDonorDonations(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	resp, err := s.donationSvc.ListForDonor(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
