package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_orders_placed_total",
			Help: "Orders placed, by order kind",
		},
		[]string{"kind"},
	)

	ordersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_orders_cancelled_total",
			Help: "Orders cancelled, by order kind",
		},
		[]string{"kind"},
	)

	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_fills_total",
			Help: "Fills observed, by order kind and grid group",
		},
		[]string{"kind", "group"},
	)

	groupExposure = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_group_exposure",
			Help: "Net filled main-instrument quantity per grid group",
		},
		[]string{"group"},
	)

	hedgeFills = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_hedge_fills",
			Help: "Cumulative hedge fills per grid group",
		},
		[]string{"group"},
	)

	lastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_last_price",
			Help: "Last observed price per instrument",
		},
		[]string{"symbol"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridbot_cycle_duration_seconds",
			Help:    "Duration of one poll cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	terminated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridbot_terminated",
			Help: "1 when the engine has halted on a structural invariant",
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_errors_total",
			Help: "Errors by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(ordersPlaced)
	prometheus.MustRegister(ordersCancelled)
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(groupExposure)
	prometheus.MustRegister(hedgeFills)
	prometheus.MustRegister(lastPrice)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(terminated)
	prometheus.MustRegister(errorsTotal)
}

func OrderPlaced(kind string) { ordersPlaced.WithLabelValues(kind).Inc() }

func OrderCancelled(kind string) { ordersCancelled.WithLabelValues(kind).Inc() }

func Fill(kind, group string) { fillsTotal.WithLabelValues(kind, group).Inc() }

func SetGroupExposure(group string, v float64) { groupExposure.WithLabelValues(group).Set(v) }

func SetHedgeFills(group string, n int) { hedgeFills.WithLabelValues(group).Set(float64(n)) }

func SetLastPrice(symbol string, v float64) { lastPrice.WithLabelValues(symbol).Set(v) }

func ObserveCycle(d time.Duration) { cycleDuration.Observe(d.Seconds()) }

func SetTerminated() { terminated.Set(1) }

func RecordError(kind string) { errorsTotal.WithLabelValues(kind).Inc() }

// Serve exposes /metrics (and /status when a handler is given) on addr.
// Errors are returned through errCh so the bot can log them without coupling
// this package to the logger.
func Serve(addr string, status http.Handler, errCh chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if status != nil {
		mux.Handle("/status", status)
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if errCh != nil {
				errCh <- err
			}
		}
	}()
	return srv
}
