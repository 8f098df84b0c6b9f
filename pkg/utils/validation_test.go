package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	Name string `json:"name" validate:"required,max=5"`
	Kind string `json:"kind" validate:"oneof=character thing event"`
	ID   string `json:"id" validate:"omitempty,uuid"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sampleRequest{Name: "Aria", Kind: "character"}))

	err := ValidateStruct(sampleRequest{Kind: "place", ID: "nope"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "name is required")
		assert.Contains(t, err.Error(), "kind must be one of: character thing event")
		assert.Contains(t, err.Error(), "id must be a valid id")
	}

	err = ValidateStruct(sampleRequest{Name: "Aragorn", Kind: "thing"})
	if assert.Error(t, err) {
		assert.Equal(t, "name must be at most 5", err.Error())
	}
}
