package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/churnboard/churnboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
				convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 1<<20)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("CHURNBOARD_ADDR", ":8080")
			t.Setenv("CHURNBOARD_QUEUE_SIZE", "64")
			t.Setenv("CHURNBOARD_WORKER_COUNT", "3")
			t.Setenv("CHURNBOARD_HIGH_PROB_THRESHOLD", "0.6")
			t.Setenv("CHURNBOARD_MAX_BODY_SIZE", "256KiB")
			t.Setenv("CHURNBOARD_SHUTDOWN_TIMEOUT", "3s")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.HighProbThreshold, convey.ShouldEqual, 0.6)
				convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 256*1024)
				convey.So(cfg.ShutdownTimeout, convey.ShouldEqual, 3*time.Second)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(t, "config.yaml", `
addr: ":9090"
database_driver: sqlite3
database_dsn: "file:churn.db"
inference_url: "http://model.local/predict"
max_list_limit: 50
`)
			t.Setenv("CHURNBOARD_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DatabaseDriver, convey.ShouldEqual, "sqlite3")
				convey.So(cfg.DatabaseDSN, convey.ShouldEqual, "file:churn.db")
				convey.So(cfg.InferenceURL, convey.ShouldEqual, "http://model.local/predict")
				convey.So(cfg.MaxListLimit, convey.ShouldEqual, 50)
				convey.So(cfg.DefaultListLimit, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When loading config with a TOML file and env overrides", func() {
			path := writeConfigFile(t, "config.toml", `
addr = ":7070"
worker_count = 5
smtp_host = "smtp.example.com"
mail_to = "ops@example.com"
`)
			t.Setenv("CHURNBOARD_CONFIG", path)
			t.Setenv("CHURNBOARD_WORKER_COUNT", "9")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env should win over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 9)
				convey.So(cfg.SMTPHost, convey.ShouldEqual, "smtp.example.com")
				convey.So(cfg.MailTo, convey.ShouldEqual, "ops@example.com")
			})
		})

		convey.Convey("When the file has an unsupported extension", func() {
			path := writeConfigFile(t, "config.ini", "addr=:1")
			t.Setenv("CHURNBOARD_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should fail to load", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(err, config.ErrFileFormat), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file is invalid YAML", func() {
			path := writeConfigFile(t, "bad.yaml", `invalid: yaml: content: [`)
			t.Setenv("CHURNBOARD_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file does not exist", func() {
			t.Setenv("CHURNBOARD_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When numeric env vars are not numbers", func() {
			t.Setenv("CHURNBOARD_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"empty addr", map[string]string{"CHURNBOARD_ADDR": ""}, "addr must not be empty"},
		{"unknown driver", map[string]string{"CHURNBOARD_DATABASE_DRIVER": "mysql"}, "unknown database_driver"},
		{"sql without dsn", map[string]string{"CHURNBOARD_DATABASE_DRIVER": "pgx"}, "database_dsn is required"},
		{"threshold above one", map[string]string{"CHURNBOARD_HIGH_PROB_THRESHOLD": "1.5"}, "high_prob_threshold"},
		{"limit inversion", map[string]string{"CHURNBOARD_MAX_LIST_LIMIT": "5"}, "list limits"},
		{"bad body size", map[string]string{"CHURNBOARD_MAX_BODY_SIZE": "lots"}, "max_body_size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnvVars(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := config.Load(context.Background())
			if cfg != nil || err == nil {
				t.Fatalf("expected validation error, got cfg=%v err=%v", cfg, err)
			}
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if got := err.Error(); !strings.Contains(got, tc.want) {
				t.Fatalf("error %q does not mention %q", got, tc.want)
			}
		})
	}
}

// Helper functions.

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "CHURNBOARD_") {
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
