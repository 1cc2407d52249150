package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sensor-anomaly/internal/models"
)

func spikeJSON(t *testing.T) []byte {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := make([]models.Reading, 0, 21)
	for i := 0; i < 20; i++ {
		readings = append(readings, models.Reading{
			Timestamp: start.Add(time.Duration(i) * 10 * time.Minute),
			EntityID:  "sensor.temp",
			Value:     19.0 + float64(i%2)*2,
		})
	}
	readings = append(readings, models.Reading{Timestamp: start.Add(200 * time.Minute), EntityID: "sensor.temp", Value: 35.0})
	data, err := json.Marshal(readings)
	require.NoError(t, err)
	return data
}

func execute(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommandWithIO(bytes.NewReader(stdin), &out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestDetectFromStdin(t *testing.T) {
	out, _, err := execute(t, spikeJSON(t))
	require.NoError(t, err)

	var result models.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, models.MethodZScore, result.Anomalies[0].Method)
	assert.Equal(t, 1, result.Summary.TotalEntities)
}

func TestDetectFromFileAsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.json")
	require.NoError(t, os.WriteFile(path, spikeJSON(t), 0o600))

	out, _, err := execute(t, nil, "--input", path, "--output", "yaml")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "anomalies")
	assert.Contains(t, doc, "entityStats")
	summary := doc["summary"].(map[string]interface{})
	assert.Equal(t, 1, summary["criticalCount"])
}

func TestDetectFlagOverrides(t *testing.T) {
	out, _, err := execute(t, spikeJSON(t), "--z-threshold", "5")
	require.NoError(t, err)

	var result models.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, models.MethodIQR, result.Anomalies[0].Method)
}

func TestDetectConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detection.yaml")
	require.NoError(t, os.WriteFile(path, []byte("minDataPoints: 100\nzScoreThreshold: 5\n"), 0o600))

	out, _, err := execute(t, spikeJSON(t), "--config", path)
	require.NoError(t, err)
	var result models.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Empty(t, result.EntityStats)

	// flags win over the file
	out, _, err = execute(t, spikeJSON(t), "--config", path, "--min-data-points", "5")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.EntityStats, 1)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, models.MethodIQR, result.Anomalies[0].Method)
}

func TestDetectErrors(t *testing.T) {
	tests := []struct {
		name    string
		stdin   []byte
		args    []string
		wantErr string
	}{
		{name: "bad output", stdin: []byte("[]"), args: []string{"--output", "xml"}, wantErr: "unsupported output format"},
		{name: "invalid threshold", stdin: []byte("[]"), args: []string{"--iqr-multiplier", "0"}, wantErr: "iqrMultiplier"},
		{name: "NaN threshold", stdin: []byte("[]"), args: []string{"--z-threshold", "NaN"}, wantErr: "zScoreThreshold"},
		{name: "infinite multiplier", stdin: []byte("[]"), args: []string{"--iqr-multiplier", "+Inf"}, wantErr: "iqrMultiplier"},
		{name: "empty input", stdin: nil, wantErr: "empty payload"},
		{name: "malformed input", stdin: []byte("[{"), wantErr: "decoding readings"},
		{name: "missing file", args: []string{"--input", "/nonexistent/readings.json"}, wantErr: "reading input"},
		{name: "bad log level", stdin: []byte("[]"), args: []string{"--log-level", "shout"}, wantErr: "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultsCommand(t *testing.T) {
	out, _, err := execute(t, nil, "defaults")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "zScoreThreshold: 2.5"), out)
	assert.Contains(t, out, "- automation")
}
