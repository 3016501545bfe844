// Package config parses the hosting process's CLI flags into the
// slave banker's construction-time configuration. Loading from a file
// and process-launch glue are explicitly out of scope for the core;
// this package is the thin external collaborator the core's Config
// struct is built from.
package config

import (
	"flag"
	"fmt"
	"time"

	"slavebanker/internal/banker"
	"slavebanker/internal/money"
)

// Flags holds every flag relevant to the reconciliation core, plus the
// transport selection and listen addresses needed to wire it up.
type Flags struct {
	AccountSuffix   string
	SpendRate       string
	UseHTTPBanker   bool
	MasterAddr      string
	NATSAddr        string
	SlowModeTimeout time.Duration
	HTTPAddr        string
}

// Parse parses args (typically os.Args[1:]) into Flags.
func Parse(args []string) (Flags, error) {
	fs := flag.NewFlagSet("slavebanker", flag.ContinueOnError)

	f := Flags{}
	fs.StringVar(&f.AccountSuffix, "account-suffix", "", "identifies this slave instance within the master's account namespace (required)")
	fs.StringVar(&f.SpendRate, "spend-rate", "100000USD/1M", "budget slice requested per reauthorize cycle, e.g. 100000USD/1M")
	fs.BoolVar(&f.UseHTTPBanker, "use-http-banker", true, "use the HTTP application layer instead of the message-bus one")
	fs.StringVar(&f.MasterAddr, "master-addr", "http://localhost:9000", "base URL of the master banker, when --use-http-banker is set")
	fs.StringVar(&f.NATSAddr, "nats-addr", "nats://localhost:4222", "NATS server address, when --use-http-banker is unset")
	fs.DurationVar(&f.SlowModeTimeout, "slowModeTimeout", banker.DefaultMaxFailSyncSeconds, "liveness staleness threshold")
	fs.StringVar(&f.HTTPAddr, "http-addr", ":9091", "listen address for the admin/metrics/health HTTP server")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// ToBankerConfig validates and converts Flags into banker.Config,
// parsing SpendRate and applying defaults for everything the core
// itself defaults. A fatal configuration error here must prevent the
// process from starting.
func (f Flags) ToBankerConfig() (banker.Config, error) {
	if f.AccountSuffix == "" {
		return banker.Config{}, fmt.Errorf("configuration error: --account-suffix must be non-empty")
	}
	rate, err := money.ParseRate(f.SpendRate)
	if err != nil {
		return banker.Config{}, fmt.Errorf("configuration error: invalid --spend-rate %q: %w", f.SpendRate, err)
	}

	return banker.Config{
		AccountSuffix:      f.AccountSuffix,
		SpendRate:          rate,
		MaxFailSyncSeconds: f.SlowModeTimeout,
		ReportSpendPeriod:  time.Second,
		ReauthorizePeriod:  time.Second,
	}, nil
}
