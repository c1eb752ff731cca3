package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const contentTypePDF = "application/pdf"

func (s *Server) GetStatement(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	resp, err := s.statementSvc.ForDonor(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStatementPDF(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	doc, err := s.statementSvc.RenderPDF(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writePDF(c, "donation-statement.pdf", doc)
}

func (s *Server) GetReceiptPDF(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	doc, err := s.statementSvc.RenderReceipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextDonationIDKey, id)
	writePDF(c, fmt.Sprintf("receipt-%s.pdf", id), doc)
}

func writePDF(c *gin.Context, filename string, doc io.Reader) {
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, contentTypePDF, body)
}
