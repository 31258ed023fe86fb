package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultProfile(t *testing.T) {
	profile := DefaultProfile("user-1")

	assert.Equal(t, "user-1", profile.UserID)
	assert.Equal(t, "NSW", profile.Region)
	assert.Empty(t, profile.OrgName)
	assert.Empty(t, profile.Role)
	assert.Empty(t, profile.Phone)
}

func TestValidRegion(t *testing.T) {
	for _, code := range Regions {
		assert.True(t, ValidRegion(code), code)
	}
	assert.False(t, ValidRegion(""))
	assert.False(t, ValidRegion("nsw"))
	assert.False(t, ValidRegion("AUK"))
}
