package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Environment
		wantErr bool
	}{
		{name: "local", input: "local", want: EnvironmentLocal},
		{name: "docker compose", input: "local-docker", want: EnvironmentLocalDocker},
		{name: "production", input: "production", want: EnvironmentProduction},
		{name: "empty", input: "", wantErr: true},
		{name: "wrong case", input: "Production", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), ApplicationEnvKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetApplicationEnvOrDefault(t *testing.T) {
	t.Setenv(ApplicationEnvKey, "staging")
	assert.Equal(t, EnvironmentStaging, GetApplicationEnvOrDefault(EnvironmentLocal))

	t.Setenv(ApplicationEnvKey, "nowhere")
	assert.Equal(t, EnvironmentLocal, GetApplicationEnvOrDefault(EnvironmentLocal))
	assert.True(t, IsLocalApplicationEnv())
}
