package internal_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wal-g/initsync/internal"
)

func resetToDefaults() {
	viper.Reset()
	internal.SetDefaultValues(viper.GetViper())
}

func TestDefaultSettings(t *testing.T) {
	resetToDefaults()
	defer resetToDefaults()

	maxCount, err := internal.GetIntSetting(internal.BufferMaxCountSetting)
	assert.NoError(t, err)
	assert.Equal(t, 10000, maxCount)

	maxBytes, err := internal.GetIntSetting(internal.BufferMaxBytesSetting)
	assert.NoError(t, err)
	assert.Equal(t, 268435456, maxBytes)

	interval, err := internal.GetDurationSetting(internal.BatchIntervalSetting)
	assert.NoError(t, err)
	assert.Equal(t, time.Second, interval)

	policy, ok := internal.GetSetting(internal.BufferPolicySetting)
	assert.True(t, ok)
	assert.Equal(t, "block", policy)

	stop, err := internal.GetBoolSettingDefault(internal.StopWhenSourceIsBehindSetting, true)
	assert.NoError(t, err)
	assert.False(t, stop)
}

func TestGetSettings_ParseErrors(t *testing.T) {
	resetToDefaults()
	defer resetToDefaults()

	viper.Set(internal.ApplyWorkersSetting, "many")
	_, err := internal.GetIntSetting(internal.ApplyWorkersSetting)
	assert.EqualError(t, err, "failed to parse INITSYNC_APPLY_WORKERS: strconv.Atoi: parsing \"many\": invalid syntax")

	viper.Set(internal.BatchIntervalSetting, "soon")
	_, err = internal.GetDurationSetting(internal.BatchIntervalSetting)
	assert.Error(t, err)

	viper.Set(internal.StopWhenSourceIsBehindSetting, "maybe")
	_, err = internal.GetBoolSettingDefault(internal.StopWhenSourceIsBehindSetting, false)
	assert.Error(t, err)

	_, err = internal.GetIntSetting("INITSYNC_UNKNOWN")
	assert.Error(t, err)
}

func TestGetPositiveDurationSetting(t *testing.T) {
	resetToDefaults()
	defer resetToDefaults()

	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{value: "250ms", want: 250 * time.Millisecond},
		{value: "0s", wantErr: true},
		{value: "-1s", wantErr: true},
		{value: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			viper.Set(internal.BatchIntervalSetting, tt.value)
			got, err := internal.GetPositiveDurationSetting(internal.BatchIntervalSetting)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetRequiredSetting(t *testing.T) {
	resetToDefaults()
	defer resetToDefaults()

	_, err := internal.GetRequiredSetting(internal.MongoDBUriSetting)
	assert.EqualError(t, err, "MONGODB_URI is required")

	viper.Set(internal.MongoDBUriSetting, "mongodb://localhost:27017")
	uri, err := internal.GetRequiredSetting(internal.MongoDBUriSetting)
	assert.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", uri)
}

func TestAssertRequiredSettingsSet(t *testing.T) {
	resetToDefaults()
	defer resetToDefaults()
	internal.RequiredSettings[internal.SourceURISetting] = true
	defer delete(internal.RequiredSettings, internal.SourceURISetting)

	assert.Error(t, internal.AssertRequiredSettingsSet())
	viper.Set(internal.SourceURISetting, "mongodb://source:27017")
	assert.NoError(t, internal.AssertRequiredSettingsSet())
}

func TestConfigureLogging(t *testing.T) {
	resetToDefaults()
	defer resetToDefaults()

	require.NoError(t, internal.ConfigureLogging())
	viper.Set(internal.LogLevelSetting, "LOUD")
	assert.Error(t, internal.ConfigureLogging())
}
