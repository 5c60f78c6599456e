package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestMigratedModelsParse(t *testing.T) {
	cache := &sync.Map{}
	for _, model := range []interface{}{
		&User{},
		&PlanningApplication{},
		&ValidationRequest{},
		&Document{},
		&Condition{},
		&HeadsOfTerm{},
		&HeadsOfTermTerm{},
		&ConsiderationSet{},
		&PolicyArea{},
		&PermittedDevelopmentRight{},
		&LocalPolicy{},
		&OwnershipCertificate{},
		&ImmunityDetail{},
		&Review{},
		&AuditLog{},
		&Notification{},
		&FeePayment{},
	} {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err, "%T", model)
		assert.NotEmpty(t, s.Table)
	}
}

func TestStringListColumn(t *testing.T) {
	s, err := schema.Parse(&Document{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	field := s.LookUpField("Tags")
	require.NotNil(t, field)
	assert.Equal(t, schema.DataType("text"), field.DataType)
}

func TestStringListValueAndScan(t *testing.T) {
	v, err := StringList{"site_plan", "proposed"}.Value()
	require.NoError(t, err)

	var back StringList
	require.NoError(t, back.Scan(v))
	assert.Equal(t, StringList{"site_plan", "proposed"}, back)

	var fromText StringList
	require.NoError(t, fromText.Scan("{elevation}"))
	assert.Equal(t, StringList{"elevation"}, fromText)
}
