package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/otxsync/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		// A loadable baseline: the two fields without defaults.
		_ = os.Setenv("OTXSYNC_OTX_API_KEY", "test-key")
		_ = os.Setenv("OTXSYNC_CRITS_URL", "https://crits.example.com/")
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.OTXURL, convey.ShouldEqual, "https://otx.alienvault.com/api/v1")
				convey.So(cfg.PageSize, convey.ShouldEqual, 10)
				convey.So(cfg.CRITsVerify, convey.ShouldBeTrue)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
				convey.So(cfg.MaxAgeDays, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("OTXSYNC_PAGE_SIZE", "25")
			_ = os.Setenv("OTXSYNC_MAX_AGE_DAYS", "7")
			_ = os.Setenv("OTXSYNC_SOURCE", "MyFeed")
			_ = os.Setenv("OTXSYNC_CRITS_VERIFY", "false")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageSize, convey.ShouldEqual, 25)
				convey.So(cfg.MaxAgeDays, convey.ShouldEqual, 7)
				convey.So(cfg.Source, convey.ShouldEqual, "MyFeed")
				convey.So(cfg.CRITsVerify, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "otxsync.yaml")
			yaml := `
otx_url: https://otx.internal/api/v1
page_size: 50
crits_username: importer
dev: true
crits_dev_url: https://crits-dev.example.com
crits_dev_api_key: dev-secret
`
			convey.So(os.WriteFile(path, []byte(yaml), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("OTXSYNC_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values should land in the config", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.OTXURL, convey.ShouldEqual, "https://otx.internal/api/v1")
				convey.So(cfg.PageSize, convey.ShouldEqual, 50)
				convey.So(cfg.CRITsUsername, convey.ShouldEqual, "importer")
			})

			convey.Convey("Then the dev switch selects the dev variant", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.BaseURL(), convey.ShouldEqual, "https://crits-dev.example.com")
				convey.So(cfg.APIKey(), convey.ShouldEqual, "dev-secret")
			})

			convey.Convey("And env vars should still win over the file", func() {
				_ = os.Setenv("OTXSYNC_PAGE_SIZE", "99")
				cfg2, err2 := config.Load(ctx)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(cfg2.PageSize, convey.ShouldEqual, 99)
			})
		})

		convey.Convey("When required fields are missing", func() {
			_ = os.Unsetenv("OTXSYNC_OTX_API_KEY")

			cfg, err := config.Load(ctx)

			convey.Convey("Then loading should fail with an invalid-config error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})

		convey.Convey("When page_size is not positive", func() {
			_ = os.Setenv("OTXSYNC_PAGE_SIZE", "0")

			cfg, err := config.Load(ctx)

			convey.Convey("Then loading should fail", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})

		convey.Convey("When the CRITs URL carries a trailing slash", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then BaseURL strips it", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.BaseURL(), convey.ShouldEqual, "https://crits.example.com")
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"OTXSYNC_CONFIG",
		"OTXSYNC_LOG_LEVEL",
		"OTXSYNC_OTX_URL",
		"OTXSYNC_OTX_API_KEY",
		"OTXSYNC_OTX_PROXY",
		"OTXSYNC_PAGE_SIZE",
		"OTXSYNC_MAX_AGE_DAYS",
		"OTXSYNC_CRITS_URL",
		"OTXSYNC_CRITS_DEV_URL",
		"OTXSYNC_CRITS_USERNAME",
		"OTXSYNC_CRITS_API_KEY",
		"OTXSYNC_CRITS_DEV_API_KEY",
		"OTXSYNC_CRITS_PROXY",
		"OTXSYNC_CRITS_VERIFY",
		"OTXSYNC_DEV",
		"OTXSYNC_SOURCE",
		"OTXSYNC_DEDUPE_SIZE",
		"OTXSYNC_POLL_INTERVAL",
		"OTXSYNC_METRICS_ADDR",
	} {
		_ = os.Unsetenv(key)
	}
}
