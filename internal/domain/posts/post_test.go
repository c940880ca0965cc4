package posts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitPrice(t *testing.T) {
	fixed, hourly := 100.0, 25.0

	assert.Equal(t, 100.0, (&Post{FixedPrice: &fixed, HourlyRate: &hourly}).UnitPrice())
	assert.Equal(t, 25.0, (&Post{HourlyRate: &hourly}).UnitPrice())
	assert.Equal(t, 0.0, (&Post{}).UnitPrice())
}
