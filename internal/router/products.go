package router

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/model"
)

// productView 在商品上附加解析后的图片地址与总库存。
type productView struct {
	*model.Product
	ImageURL   string `json:"image_url"`
	TotalStock int64  `json:"total_stock"`
}

func (h *handlers) view(p *model.Product) *productView {
	if p == nil {
		return nil
	}
	return &productView{Product: p, ImageURL: h.catalog.ResolveProductImage(p), TotalStock: p.TotalStock()}
}

func (h *handlers) listProducts(c *gin.Context) {
	list, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]*productView, 0, len(list))
	for i := range list {
		out = append(out, h.view(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *handlers) productStock(c *gin.Context) {
	id, ok := parseID(c, "product_id", "product")
	if !ok {
		return
	}
	sizes, err := h.catalog.SizeAvailability(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "sizes": sizes})
}

func (h *handlers) createProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := bindJSON(c, &in); err != nil {
		h.writeError(c, err)
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": h.view(p)})
}

// parseID 解析路径参数，非法 id 与不存在同样返回 404。
func parseID(c *gin.Context, param, resource string) (uint, bool) {
	raw := c.Param(param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found.", "code": apperr.CodeNotFound, "resource": resource})
		return 0, false
	}
	return uint(id), true
}
