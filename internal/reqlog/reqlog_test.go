package reqlog

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStep_WritesReqIDAndStep(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, false)

	ctx := WithRequestID(context.Background(), "req-1")
	Step(ctx, "cache_get_start", "container", "MSCU1234566")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "req-1", line["reqId"])
	require.Equal(t, "cache_get_start", line["step"])
	require.Equal(t, "MSCU1234566", line["container"])
	require.Equal(t, "INFO", line["level"])
}

func TestDebug_OnlyWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, false)
	Debug(context.Background(), "headers")
	require.Empty(t, buf.String())

	SetupWriter(&buf, true)
	Debug(context.Background(), "headers")
	require.True(t, strings.Contains(buf.String(), `"step":"headers"`))
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	require.Len(t, RequestID(ctx), 36)
	require.Empty(t, RequestID(context.Background()))
}
