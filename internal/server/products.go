package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	registrydomain "github.com/smallbiznis/trustmark/internal/registry/domain"
	scanledgerdomain "github.com/smallbiznis/trustmark/internal/scanledger/domain"
	"github.com/smallbiznis/trustmark/pkg/db/pagination"
)

type listProductsQuery struct {
	Batch    string `form:"batch"`
	Active   string `form:"active"`
	SortBy   string `form:"sort_by"`
	OrderBy  string `form:"order_by"`
	PageSize int    `form:"page_size"`
	Offset   int    `form:"offset"`
}

type listScansQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Outcome   string `form:"outcome"`
}

type setActiveRequest struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (s *Server) GetProduct(c *gin.Context) {
	productID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()

	product, err := s.registrySvc.Get(ctx, productID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stats, err := s.ledgerSvc.Stats(ctx, productID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("product_id", productID)
	c.JSON(http.StatusOK, gin.H{"data": product, "stats": stats})
}

func (s *Server) ListProducts(c *gin.Context) {
	var query listProductsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	products, err := s.registrySvc.List(c.Request.Context(), registrydomain.ListRequest{
		Batch:    strings.TrimSpace(query.Batch),
		Active:   active,
		SortBy:   strings.TrimSpace(query.SortBy),
		OrderBy:  strings.TrimSpace(query.OrderBy),
		PageSize: query.PageSize,
		Offset:   query.Offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) ListProductScans(c *gin.Context) {
	var query listScansQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID := strings.TrimSpace(c.Param("id"))
	resp, err := s.ledgerSvc.List(c.Request.Context(), scanledgerdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ProductID: productID,
		Outcome:   strings.TrimSpace(query.Outcome),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("product_id", productID)
	c.JSON(http.StatusOK, gin.H{"data": resp.Scans, "page_info": resp.PageInfo})
}

func (s *Server) ActivateProduct(c *gin.Context) {
	s.setProductActive(c, true)
}

func (s *Server) DeactivateProduct(c *gin.Context) {
	s.setProductActive(c, false)
}

func (s *Server) setProductActive(c *gin.Context, active bool) {
	var req setActiveRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID := strings.TrimSpace(c.Param("id"))
	resp, err := s.registrySvc.SetActive(c.Request.Context(), registrydomain.SetActiveRequest{
		ProductID: productID,
		Active:    active,
		Name:      req.Name,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("product_id", productID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
