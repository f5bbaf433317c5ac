package logger_test

import (
	"context"
	"testing"

	"github.com/okian/otxsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized global logger", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("When fetching the global instance", func() {
			l := logger.Get()

			Convey("Then it logs at every level without panicking", func() {
				ctx := context.Background()
				So(func() {
					l.Debug(ctx, "debug line", logger.String("k", "v"))
					l.Info(ctx, "info line", logger.Int("n", 1))
					l.Warn(ctx, "warn line", logger.Bool("b", true))
					l.Error(ctx, "error line", logger.Error(nil))
				}, ShouldNotPanic)
			})
		})

		Convey("When deriving a named logger", func() {
			l := logger.Named("pipeline")

			Convey("Then it is usable", func() {
				So(l, ShouldNotBeNil)
				So(func() { l.Info(context.Background(), "named line") }, ShouldNotPanic)
			})
		})

		Convey("When setting levels by string", func() {
			Convey("Then known levels parse", func() {
				for _, lvl := range []string{"debug", "info", "warn", "warning", "error", "", "  INFO "} {
					So(logger.SetLevelString(lvl), ShouldBeNil)
				}
			})

			Convey("Then unknown levels are rejected", func() {
				So(logger.SetLevelString("loud"), ShouldNotBeNil)
			})
		})
	})
}
