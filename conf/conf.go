package conf

import (
	"encoding/json"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ringo-is-a-color/lastcall/shutdown"
	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/osutil"
	"go4.org/netipx"
	"golang.org/x/exp/slices"
)

type Config struct {
	Shutdown Shutdown `json:"shutdown"`
	Echo     *Echo    `json:"echo"`
	Metrics  *Metrics `json:"metrics"`
	Journal  Journal  `json:"journal"`
	LockFile string   `json:"lock-file" validate:"required"`
	Misc     Misc     `json:"misc"`
}

type Shutdown struct {
	Signals         Signals  `json:"signals" validate:"min=1"`
	ExitCode        int      `json:"exit-code" validate:"gte=0,lte=255"`
	SignalExitCode  bool     `json:"signal-exit-code"`
	MarkFailure     bool     `json:"mark-failure"`
	FailureExitCode int      `json:"failure-exit-code" validate:"gte=1,lte=255"`
	DrainTimeout    Duration `json:"drain-timeout" validate:"gte=0"`
}

func (s *Shutdown) CoordinatorConfig() shutdown.Config {
	return shutdown.Config{
		Signals:         s.Signals,
		ExitCode:        s.ExitCode,
		SignalExitCode:  s.SignalExitCode,
		MarkFailure:     s.MarkFailure,
		FailureExitCode: s.FailureExitCode,
		DrainTimeout:    time.Duration(s.DrainTimeout),
	}
}

type Echo struct {
	Host  string    `json:"host" validate:"ip|hostname_rfc1123"`
	Port  uint16    `json:"port" validate:"gte=1"`
	Allow AllowList `json:"allow"`
}

func (echo *Echo) Addr() string {
	return net.JoinHostPort(echo.Host, strconv.Itoa(int(echo.Port)))
}

type Metrics struct {
	Host string `json:"host" validate:"ip|hostname_rfc1123"`
	Port uint16 `json:"port" validate:"gte=1"`
	Path string `json:"path" validate:"startswith=/"`
}

func (metrics *Metrics) Addr() string {
	return net.JoinHostPort(metrics.Host, strconv.Itoa(int(metrics.Port)))
}

type Journal struct {
	Path string `json:"path" validate:"required"`
}

type Misc struct {
	VerboseLog bool `json:"verbose-log"`
}

// Signals is written as a list of names, e.g. ["SIGINT", "term"].
type Signals []os.Signal

// Duration is written as a Go duration string, e.g. "30s".
type Duration time.Duration

// AllowList is written as a list of IPs or CIDRs. An empty list allows every address.
type AllowList struct {
	*netipx.IPSet
}

func (allow AllowList) Allows(addr netip.Addr) bool {
	if allow.IPSet == nil {
		return true
	}
	return allow.Contains(addr.Unmap())
}

const (
	defaultEchoHost        = "127.0.0.1"
	defaultEchoPort        = 7007
	defaultMetricsHost     = "127.0.0.1"
	defaultMetricsPort     = 9464
	defaultMetricsPath     = "/metrics"
	defaultJournalPath     = "lastcall.db"
	defaultLockFile        = "lastcall.lock"
	defaultFailureExitCode = 1
)

func (echo *Echo) UnmarshalJSON(data []byte) error {
	// https://stackoverflow.com/a/41102996
	type EchoAlias Echo
	echoAlias := (*EchoAlias)(echo)
	echoAlias.Host = defaultEchoHost
	echoAlias.Port = defaultEchoPort
	return json.Unmarshal(data, echoAlias)
}

func (metrics *Metrics) UnmarshalJSON(data []byte) error {
	type MetricsAlias Metrics
	metricsAlias := (*MetricsAlias)(metrics)
	metricsAlias.Host = defaultMetricsHost
	metricsAlias.Port = defaultMetricsPort
	metricsAlias.Path = defaultMetricsPath
	return json.Unmarshal(data, metricsAlias)
}

func (signals *Signals) UnmarshalJSON(data []byte) error {
	var names []string
	err := json.Unmarshal(data, &names)
	if err != nil {
		return errors.Wrap(err, "fail to parse the 'signals' field")
	}

	normalized := make([]string, 0, len(names))
	parsed := make(Signals, 0, len(names))
	for _, name := range names {
		sig, ok := osutil.SignalByName(name)
		if !ok {
			return errors.Newf("unsupported signal '%v'", name)
		}
		normalized = append(normalized, osutil.SignalName(sig))
		parsed = append(parsed, sig)
	}
	slices.Sort(normalized)
	if len(slices.Compact(normalized)) != len(parsed) {
		return errors.Newf("the 'signals' field has duplicated signals: %v", strings.Join(names, ", "))
	}
	*signals = parsed
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var durationStr string
	err := json.Unmarshal(data, &durationStr)
	if err != nil {
		return errors.Wrap(err, "a duration should be a string like \"30s\"")
	}
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return errors.Wrapf(err, "invalid duration '%v'", durationStr)
	}
	*d = Duration(duration)
	return nil
}

func (allow *AllowList) UnmarshalJSON(data []byte) error {
	var entries []string
	err := json.Unmarshal(data, &entries)
	if err != nil {
		return errors.Wrap(err, "fail to parse the 'allow' field")
	}
	if len(entries) == 0 {
		allow.IPSet = nil
		return nil
	}

	var ipSetBuilder netipx.IPSetBuilder
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return errors.Wrapf(err, "invalid CIDR '%v'", entry)
			}
			ipSetBuilder.AddPrefix(prefix.Masked())
		} else {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return errors.Wrapf(err, "invalid IP '%v'", entry)
			}
			ipSetBuilder.Add(addr.Unmap())
		}
	}
	ipSet, err := ipSetBuilder.IPSet()
	if err != nil {
		return errors.WithStack(err)
	}
	allow.IPSet = ipSet
	return nil
}
