package plan

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestPrice_EffectiveAt(t *testing.T) {
	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	p := &Price{EffectiveFrom: from, EffectiveTo: lo.ToPtr(to)}

	assert.False(t, p.EffectiveAt(from.Add(-time.Second)))
	assert.True(t, p.EffectiveAt(from))
	assert.True(t, p.EffectiveAt(to.Add(-time.Second)))
	assert.False(t, p.EffectiveAt(to))

	p.EffectiveTo = nil
	assert.True(t, p.EffectiveAt(to.AddDate(5, 0, 0)))
}
