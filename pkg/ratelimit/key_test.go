package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_String(t *testing.T) {
	cases := []struct {
		key     Key
		want    string
		penalty string
	}{
		{
			key:     NewKey(DimensionIP, CategoryLogin, "1.2.3.4", ""),
			want:    "rate_limit:per_ip:login:1.2.3.4",
			penalty: "rate_limit:per_ip:login:1.2.3.4:penalty",
		},
		{
			key:     NewKey(DimensionEndpoint, CategoryExport, "42", "/api/projects/7/export?format=pdf"),
			want:    "rate_limit:per_endpoint:export:api_projects_7_export:42",
			penalty: "rate_limit:per_endpoint:export:api_projects_7_export:42:penalty",
		},
		{
			key:     NewKey(DimensionGlobal, CategorySystem, "system", ""),
			want:    "rate_limit:global:system:system",
			penalty: "rate_limit:global:system:system:penalty",
		},
		{
			key:     NewKey(DimensionIP, CategoryAPI, "  ", ""),
			want:    "rate_limit:per_ip:api:unknown",
			penalty: "rate_limit:per_ip:api:unknown:penalty",
		},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.key.String())
			assert.Equal(t, tc.penalty, tc.key.PenaltyKey())
		})
	}
}

func TestEndpointSlug(t *testing.T) {
	assert.Equal(t, "", EndpointSlug(""))
	assert.Equal(t, "", EndpointSlug("/"))
	assert.Equal(t, "api_bulk", EndpointSlug("/API/Bulk/"))
	assert.Equal(t, "api_export", EndpointSlug("/api/export#top"))
	assert.Equal(t, "a_b", EndpointSlug("a:b"))
}

func TestKey_Isolation(t *testing.T) {
	a := NewKey(DimensionIP, CategoryAPI, "10.0.0.1", "")
	b := NewKey(DimensionIP, CategoryAPI, "10.0.0.2", "")
	c := NewKey(DimensionIP, CategoryUpload, "10.0.0.1", "")
	assert.NotEqual(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
	assert.Equal(t, a.String(), NewKey(DimensionIP, CategoryAPI, " 10.0.0.1 ", "").String())
}
