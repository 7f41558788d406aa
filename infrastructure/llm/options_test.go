package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		ro := parseRequestOptions(nil, "base-model")

		assert.Equal(t, DefaultMaxTokens, ro.maxTokens)
		assert.Equal(t, "base-model", ro.model)
		assert.Empty(t, ro.system)
		assert.Nil(t, ro.temperature)
		assert.Nil(t, ro.topP)
	})

	t.Run("valid values", func(t *testing.T) {
		ro := parseRequestOptions(map[string]any{
			OptMaxTokens:   500,
			OptModel:       "other",
			OptSystem:      "be brief",
			OptTemperature: 0.7,
			OptTopP:        0.9,
		}, "base-model")

		assert.Equal(t, 500, ro.maxTokens)
		assert.Equal(t, "other", ro.model)
		assert.Equal(t, "be brief", ro.system)
		require.NotNil(t, ro.temperature)
		assert.InDelta(t, 0.7, *ro.temperature, 1e-9)
		require.NotNil(t, ro.topP)
		assert.InDelta(t, 0.9, *ro.topP, 1e-9)
	})

	t.Run("decoded JSON numbers", func(t *testing.T) {
		ro := parseRequestOptions(map[string]any{OptMaxTokens: float64(256), OptTemperature: 1}, "m")

		assert.Equal(t, 256, ro.maxTokens)
		require.NotNil(t, ro.temperature)
		assert.Equal(t, 1.0, *ro.temperature)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		ro := parseRequestOptions(map[string]any{
			OptMaxTokens:   -5,
			OptModel:       42,
			OptTemperature: 3.5,
			OptTopP:        "high",
		}, "base-model")

		assert.Equal(t, DefaultMaxTokens, ro.maxTokens)
		assert.Equal(t, "base-model", ro.model)
		assert.Nil(t, ro.temperature)
		assert.Nil(t, ro.topP)
	})
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "https://api.x.ai/v1", want: "https://api.x.ai/v1"},
		{in: "http://127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{in: "api.x.ai/v1", wantErr: true},
		{in: "ftp://example.com", wantErr: true},
		{in: "https://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := validateBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), clampTimeout(0))
	assert.Equal(t, time.Duration(0), clampTimeout(-time.Second))
	assert.Equal(t, MinTimeout, clampTimeout(time.Millisecond))
	assert.Equal(t, 30*time.Second, clampTimeout(30*time.Second))
	assert.Equal(t, MaxTimeout, clampTimeout(time.Hour))
}
