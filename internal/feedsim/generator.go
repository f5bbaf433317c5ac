// Package feedsim generates synthetic OTX pulses and serves them with the
// feed's pagination protocol. It exists for local end-to-end exercising of
// the pipeline without an OTX account, and for tests.
package feedsim

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/okian/otxsync/internal/domain/model"
)

// Value shapes by feed type, loosely realistic.
var sampleValues = map[string]string{
	"FileHash-SHA256": "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f",
	"FileHash-SHA1":   "3395856ce81f2b7382dee72602f798b642f14140",
	"FileHash-MD5":    "44d88612fea8a8f36de82e1278abb02f",
	"URI":             "http://malicious.example/payload.bin",
	"URL":             "http://malicious.example/landing",
	"hostname":        "c2.malicious.example",
	"domain":          "malicious.example",
	"IPv4":            "198.51.100.23",
	"IPv6":            "2001:db8::dead:beef",
	"email":           "dropper@malicious.example",
	"filepath":        "C:\\Windows\\Temp\\svch0st.exe",
	"Imphash":         "2c8a134be53af9e8bb9f9e41e3e1bc2f",
	"CIDR":            "198.51.100.0/24",
	"mutex":           "Global\\MsWinZonesCacheCounterMutexA",
	"PEhash":          "ffb7a38174aab4744cc4a509e34800aee9be8e57",
	"CVE":             "CVE-2017-0144",
	"Yara":            "rule apt_dropper { condition: true }",
}

var sampleTags = []string{"malware", "apt", "phishing", "ransomware", "botnet", "trojan"}

var sampleAdjectives = []string{"Operation", "Campaign", "Cluster", "Wave"}

var sampleActors = []string{"SilentLynx", "CopperMantis", "DustStorm", "NightHeron", "IronViper"}

// randomInt returns a uniform random int in [0, n) using crypto/rand.
func randomInt(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// GeneratePulse builds one synthetic pulse with a random subset of
// indicator types, including some the importer cannot map.
func GeneratePulse(indicatorTypes []string) model.Pulse {
	name := fmt.Sprintf("%s %s %d",
		sampleAdjectives[randomInt(len(sampleAdjectives))],
		sampleActors[randomInt(len(sampleActors))],
		randomInt(1000),
	)

	indicators := make([]model.IndicatorRecord, 0, len(indicatorTypes))
	for _, t := range indicatorTypes {
		value, ok := sampleValues[t]
		if !ok {
			value = uuid.New().String()
		}
		indicators = append(indicators, model.IndicatorRecord{Type: t, Indicator: value})
	}

	tags := make([]string, 0, 2)
	tags = append(tags, sampleTags[randomInt(len(sampleTags))])
	if randomInt(2) == 0 {
		tags = append(tags, sampleTags[randomInt(len(sampleTags))])
	}

	pulse := model.Pulse{
		ID:         uuid.New().String(),
		Name:       name,
		Created:    time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
		Tags:       tags,
		Indicators: indicators,
	}
	if randomInt(2) == 0 {
		pulse.Description = "Synthetic pulse generated for pipeline testing."
	}
	if randomInt(2) == 0 {
		pulse.References = []string{"https://example.org/report/" + pulse.ID}
	}
	return pulse
}

// GeneratePulses builds n pulses, cycling through the given indicator types
// a few records at a time.
func GeneratePulses(n int, indicatorTypes []string) []model.Pulse {
	pulses := make([]model.Pulse, n)
	for i := range pulses {
		count := 1 + randomInt(4)
		types := make([]string, 0, count)
		for j := 0; j < count; j++ {
			types = append(types, indicatorTypes[(i+j)%len(indicatorTypes)])
		}
		pulses[i] = GeneratePulse(types)
	}
	return pulses
}
