package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/enset/storefront/common/config"
	"github.com/enset/storefront/common/env"
	"github.com/enset/storefront/common/logger"
)

func TestConfigFiles(t *testing.T) {
	for _, e := range []env.Environment{
		env.EnvironmentLocal,
		env.EnvironmentLocalDocker,
		env.EnvironmentDevelopment,
		env.EnvironmentStaging,
		env.EnvironmentProduction,
	} {
		t.Run(e.String(), func(t *testing.T) {
			t.Setenv(env.ApplicationEnvKey, e.String())

			var conf ordersConfig
			err := config.LoadConfig(&conf, logger.NewLogger(zaptest.NewLogger(t)),
				config.WithRelativePath("../config"), config.WithDynamicDir("orders"))
			require.NoError(t, err)

			_, err = conf.Identity.AuthConfig()
			require.NoError(t, err)
			assert.True(t, conf.Identity.TrustInboundCorrelation)
			assert.NotEmpty(t, conf.ProductsURL)
			assert.Positive(t, conf.ProductTimeout)
		})
	}
}
