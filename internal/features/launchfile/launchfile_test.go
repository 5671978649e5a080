package launchfile

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidFile(t *testing.T) {
	data := []byte(`{
		"launches": [
			{
				"name": "Moon Token",
				"symbol": "MOON",
				"description": "To the moon",
				"chains": ["ethereum", "solana"],
				"external_links": {"website": "https://moon.example"}
			},
			{
				"name": "Sun Token",
				"symbol": "SUN",
				"chains": ["base"]
			}
		]
	}`)

	f, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, f.Launches, 2)
	assert.Equal(t, "MOON", f.Launches[0].Symbol)
	assert.Equal(t, []string{"ethereum", "solana"}, f.Launches[0].Chains)
	assert.Equal(t, "https://moon.example", f.Launches[0].ExternalLinks["website"])
}

func TestParseRejectsUnknownFields(t *testing.T) {
	data := []byte(`{"launches": [{"name": "X", "symbol": "X", "chains": ["base"], "chian": "typo"}]}`)
	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestParseRejectsBadChains(t *testing.T) {
	cases := map[string]string{
		"unsupported chain": `{"launches": [{"name": "X", "symbol": "X", "chains": ["dogechain"]}]}`,
		"duplicate chain":   `{"launches": [{"name": "X", "symbol": "X", "chains": ["base", "base"]}]}`,
		"empty chains":      `{"launches": [{"name": "X", "symbol": "X", "chains": []}]}`,
		"missing chains":    `{"launches": [{"name": "X", "symbol": "X"}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	_, err := Parse([]byte(`{"launches": []}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"launches": [{"name": "X", "symbol": "X", "chains": ["base"]}]} {"extra": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestParseImageLimits(t *testing.T) {
	small := base64.StdEncoding.EncodeToString([]byte("tiny-png-bytes"))
	data := []byte(`{"launches": [{"name": "X", "symbol": "X", "chains": ["base"], "image": "` + small + `"}]}`)
	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, small, f.Launches[0].Image)

	// Data-URL prefixes are accepted too.
	data = []byte(`{"launches": [{"name": "X", "symbol": "X", "chains": ["base"], "image": "data:image/png;base64,` + small + `"}]}`)
	_, err = Parse(data)
	assert.NoError(t, err)

	_, err = Parse([]byte(`{"launches": [{"name": "X", "symbol": "X", "chains": ["base"], "image": "!!!not-base64!!!"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base64")

	huge := base64.StdEncoding.EncodeToString(make([]byte, MaxImageBytes+1))
	data = []byte(`{"launches": [{"name": "X", "symbol": "X", "chains": ["base"], "image": "` + huge + `"}]}`)
	_, err = Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestParseRejectsBadLinks(t *testing.T) {
	data := []byte(`{"launches": [{"name": "X", "symbol": "X", "chains": ["base"], "external_links": {"website": "not a url"}}]}`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParseRejectsOverlongFields(t *testing.T) {
	longName := strings.Repeat("a", 65)
	data := []byte(`{"launches": [{"name": "` + longName + `", "symbol": "X", "chains": ["base"]}]}`)
	_, err := Parse(data)
	assert.Error(t, err)
}
