package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter_Valid(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		validate func(t *testing.T, f *Filter)
	}{
		{
			name: "empty document targets everyone",
			doc:  "",
			validate: func(t *testing.T, f *Filter) {
				assert.True(t, f.IsEmpty())
			},
		},
		{
			name: "whitespace only",
			doc:  "  \n\t ",
			validate: func(t *testing.T, f *Filter) {
				assert.True(t, f.IsEmpty())
			},
		},
		{
			name: "empty object",
			doc:  `{}`,
			validate: func(t *testing.T, f *Filter) {
				assert.True(t, f.IsEmpty())
			},
		},
		{
			name: "cities group",
			doc:  `{"cities":["Athens","Patras"]}`,
			validate: func(t *testing.T, f *Filter) {
				assert.Equal(t, []string{"Athens", "Patras"}, f.Cities)
				assert.False(t, f.IsEmpty())
			},
		},
		{
			name: "all groups",
			doc:  `{"cities":["Athens"],"tags":["vip"],"segments":[3,9],"categories":["retail"]}`,
			validate: func(t *testing.T, f *Filter) {
				assert.Equal(t, []string{"vip"}, f.Tags)
				assert.Equal(t, []int64{3, 9}, f.Segments)
				assert.Equal(t, []string{"retail"}, f.Categories)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.doc)
			require.NoError(t, err)
			tt.validate(t, f)
		})
	}
}

func TestParseFilter_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `cities=Athens`},
		{name: "unknown property", doc: `{"regions":["Attica"]}`},
		{name: "wrong value type", doc: `{"cities":"Athens"}`},
		{name: "empty string in group", doc: `{"tags":[""]}`},
		{name: "non-integer segment", doc: `{"segments":["gold"]}`},
		{name: "zero segment id", doc: `{"segments":[0]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.doc)
			assert.Error(t, err)
			assert.Nil(t, f)
		})
	}
}
