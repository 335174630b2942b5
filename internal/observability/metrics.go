package observability

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "threadcmd",
		Name:      "build_info",
		Help:      "Always 1; labels carry the running version.",
	},
	[]string{"version", "go_version"},
)

func init() {
	prometheus.MustRegister(buildInfo)
}

// SetBuildInfo publishes version on threadcmd_build_info.
func SetBuildInfo(version string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, runtime.Version()).Set(1)
}
