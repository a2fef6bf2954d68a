package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forgebridge/forgebridge/internal/jobs"
)

// Integration describes one generation service in the catalog: the live
// client when the service is configured, or a message telling the user what
// is missing when it is not.
type Integration struct {
	Provider jobs.Provider
	Enabled  bool
	Mode     string
	Message  string
}

// Catalog maps provider names onto configured integrations. Names resolve
// case-insensitively; lookups of unknown names list what is available.
type Catalog struct {
	integrations map[string]Integration
}

func NewCatalog() *Catalog {
	return &Catalog{integrations: make(map[string]Integration)}
}

// Register adds or replaces an integration under the provider's name. A
// disabled integration may be registered with a nil Provider so status
// queries can still explain how to enable it.
func (c *Catalog) Register(name string, in Integration) {
	c.integrations[normalizeName(name)] = in
}

// Resolve returns the live provider for a name. Disabled or unknown
// integrations are errors with actionable messages.
func (c *Catalog) Resolve(name string) (jobs.Provider, error) {
	in, ok := c.integrations[normalizeName(name)]
	if !ok {
		names := c.Names()
		if len(names) == 0 {
			return nil, fmt.Errorf("unknown provider %q: no providers are configured", name)
		}
		return nil, fmt.Errorf("unknown provider %q: configured providers are %s", name, strings.Join(names, ", "))
	}
	if !in.Enabled || in.Provider == nil {
		msg := in.Message
		if msg == "" {
			msg = "provider is disabled"
		}
		return nil, fmt.Errorf("provider %q is not available: %s", name, msg)
	}
	return in.Provider, nil
}

// Status reports an integration's availability without resolving it.
func (c *Catalog) Status(name string) (Integration, bool) {
	in, ok := c.integrations[normalizeName(name)]
	return in, ok
}

// Names lists registered integrations, enabled or not, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.integrations))
	for name := range c.integrations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
