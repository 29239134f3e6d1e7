package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then all collectors should be registered", func() {
				So(manager, ShouldNotBeNil)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithMetricsEnabled(false),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.histogramBuckets, ShouldResemble, []float64{1, 2, 3})
				So(manager.enabled, ShouldBeFalse)
				So(manager.constLabels["env"], ShouldEqual, "test")
			})
		})
	})
}

func TestPackageHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording stream and reconcile metrics", func() {
			before := gathered("courtside_stream_decode_failures_total")
			RecordStreamDecodeFailure()
			RecordSwapProposed()
			RecordSwapPersisted(12)
			UpdateStreamState(2)
			RecordStreamEvent("score")
			RecordTrigger("score")

			Convey("Then the collectors should reflect them", func() {
				So(gathered("courtside_stream_decode_failures_total"), ShouldEqual, before+1)
				So(gathered("courtside_stream_connection_state"), ShouldEqual, 2)
				So(gathered("courtside_stream_events_dispatched_total"), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("Then the registry should be gatherable", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}

// gathered returns the summed value of a counter or gauge family in the
// global registry.
func gathered(name string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}
