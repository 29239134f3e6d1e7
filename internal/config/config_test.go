package config_test

import (
	"errors"
	"testing"

	"github.com/okian/courtside/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.FeedURL, convey.ShouldEqual, "ws://localhost:8765")
			convey.So(cfg.ReconnectMaxRetries, convey.ShouldEqual, 0)
			convey.So(cfg.PersistQueueSize, convey.ShouldEqual, 256)
			convey.So(cfg.AwayTeam, convey.ShouldEqual, "Warriors")
			convey.So(cfg.Seed, convey.ShouldBeTrue)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a config with an out of range jitter", t, func() {
		cfg := config.New()
		cfg.ReconnectJitter = 1.5

		convey.Convey("Then validation should fail with ErrInvalidConfig", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "reconnect_jitter")
		})
	})

	convey.Convey("Given a config with a zero persist queue", t, func() {
		cfg := config.New()
		cfg.PersistQueueSize = 0

		convey.Convey("Then validation should fail", func() {
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})
	})
}
