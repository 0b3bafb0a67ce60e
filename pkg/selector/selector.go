package selector

import (
	"os"
	"strconv"
	"sync"
)

// EnvForceFallback names the environment variable that forces the
// requirement-free variant.
const EnvForceFallback = "SCENEPACK_FORCE_FALLBACK"

// Vendor prefixes checked in addition to the standard extension name.
var vendorPrefixes = []string{"WEBKIT_", "MOZ_"}

// Prober lists the extensions exposed by the current device.
type Prober interface {
	Extensions() ([]string, error)
}

// ProberFunc adapts a function to a Prober.
type ProberFunc func() ([]string, error)

// Extensions calls f.
func (f ProberFunc) Extensions() ([]string, error) { return f() }

// capabilities is probed once per process.
var capabilities struct {
	mu       sync.Mutex
	probed   bool
	exts     map[string]bool
	features map[string]bool
}

func resetCapabilities() {
	capabilities.mu.Lock()
	defer capabilities.mu.Unlock()
	capabilities.probed = false
	capabilities.exts = nil
	capabilities.features = nil
}

// Capabilities probes p on first use and reports, for every feature,
// whether the device exposes it under its standard or a vendor name. Later
// calls reuse the first successful probe.
func Capabilities(p Prober, features []string) (map[string]bool, error) {
	capabilities.mu.Lock()
	defer capabilities.mu.Unlock()

	if !capabilities.probed {
		list, err := p.Extensions()
		if err != nil {
			return nil, err
		}
		capabilities.exts = make(map[string]bool, len(list))
		for _, e := range list {
			capabilities.exts[e] = true
		}
		capabilities.features = make(map[string]bool)
		capabilities.probed = true
	}

	out := make(map[string]bool, len(features))
	for _, f := range features {
		ok, cached := capabilities.features[f]
		if !cached {
			ok = capabilities.exts[f]
			for _, prefix := range vendorPrefixes {
				ok = ok || capabilities.exts[prefix+f]
			}
			capabilities.features[f] = ok
		}
		out[f] = ok
	}
	return out, nil
}

// Selector chooses a manifest entry.
type Selector struct {
	Manifest *Manifest
	Prober   Prober
	// ForceFallback skips probing and returns the requirement-free entry.
	ForceFallback bool
}

// Select returns the first entry whose requirements all hold. A failed
// probe selects the fallback and is returned alongside it.
func (s *Selector) Select() (Entry, error) {
	if s.forced() || s.Prober == nil {
		return s.Manifest.Fallback(), nil
	}

	caps, err := Capabilities(s.Prober, s.Manifest.Features())
	if err != nil {
		return s.Manifest.Fallback(), err
	}

	for _, e := range s.Manifest.Entries {
		if satisfied(e, caps) {
			return e, nil
		}
	}
	return s.Manifest.Fallback(), nil
}

func (s *Selector) forced() bool {
	if s.ForceFallback {
		return true
	}
	v, err := strconv.ParseBool(os.Getenv(EnvForceFallback))
	return err == nil && v
}

func satisfied(e Entry, caps map[string]bool) bool {
	for _, r := range e.Required {
		if !caps[r] {
			return false
		}
	}
	return true
}
