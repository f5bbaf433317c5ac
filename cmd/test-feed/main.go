// Command test-feed serves a synthetic OTX feed for local runs of the
// pipeline against a dev CRITs instance.
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/okian/otxsync/internal/domain/indicatortype"
	"github.com/okian/otxsync/internal/feedsim"
)

const defaultNumPulses = 25

func main() {
	var (
		addr      = flag.String("addr", "localhost:9011", "Listen address")
		numPulses = flag.Int("pulses", defaultNumPulses, "Number of pulses to generate")
	)
	flag.Parse()

	pulses := feedsim.GeneratePulses(*numPulses, indicatortype.Known())
	sim := feedsim.NewServer(pulses)
	sim.BaseURL = "http://" + *addr

	srv := &http.Server{
		Addr:              *addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	os.Stdout.WriteString("serving " + *addr + " with " + flag.Lookup("pulses").Value.String() + " pulses\n")
	if err := srv.ListenAndServe(); err != nil {
		os.Stderr.WriteString("test feed failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
