package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"scoutpup/internal/types"
)

func TestCatalog_PlanForPrice(t *testing.T) {
	c := NewCatalog("price_pro", "price_ultra")

	pro, ok := c.PlanForPrice("price_pro")
	assert.True(t, ok)
	assert.Equal(t, types.PlanPro, pro.Tier)
	assert.Equal(t, 5, pro.Limits.MaxTrackers)
	assert.Equal(t, 2000, pro.Limits.ChecksPerMonth)
	assert.Equal(t, "price_pro", pro.PriceID)

	ultra, ok := c.PlanForPrice("price_ultra")
	assert.True(t, ok)
	assert.Equal(t, types.PlanUltra, ultra.Tier)
	assert.Equal(t, 10, ultra.Limits.MaxTrackers)
	assert.Equal(t, 5000, ultra.Limits.ChecksPerMonth)
}

func TestCatalog_PlanForPrice_UnknownFallsBackToFree(t *testing.T) {
	c := NewCatalog("price_pro", "price_ultra")

	p, ok := c.PlanForPrice("price_from_old_deploy")
	assert.False(t, ok)
	assert.Equal(t, types.PlanFree, p.Tier)
	assert.Equal(t, 1, p.Limits.MaxTrackers)
	assert.Empty(t, p.PriceID)
}

func TestFreeLimits(t *testing.T) {
	limits := FreeLimits()
	assert.Equal(t, 1, limits.MaxTrackers)
	assert.Equal(t, 30, limits.ChecksPerMonth)
}
